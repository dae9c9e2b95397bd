// Command triagedemo runs sample complaints through the offline triage
// pipeline (classification, location resolution, risk, resolution estimate)
// and prints the result as a table. Useful for eyeballing taxonomy changes
// without a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"civicledger.org/internal/classify"
	"civicledger.org/internal/geo"
	"civicledger.org/internal/predict"
	"civicledger.org/internal/risk"
)

var samples = []string{
	"Garbage dump near the Saket market, smells terrible",
	"Streetlight not working in Dwarka sector 7",
	"Huge pothole on the main road in Rohini",
	"Water leakage from the main pipe in Karol Bagh",
	"Sewage overflow on the road in Lajpat Nagar",
	"Stray dogs chasing children near the Hauz Khas park",
	"Someone dumped construction debris in Vasant Kunj",
	"My neighbour's wifi is slow",
}

func main() {
	file := flag.String("file", "", "Read complaints from a file, one per line (default: built-in samples)")
	flag.Parse()

	texts := samples
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		texts = nil
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				texts = append(texts, line)
			}
		}
	}

	classifier := classify.New()
	resolver := geo.NewResolver(nil)
	estimator := risk.NewStatic()
	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPLAINT\tCATEGORY\tSUBCATEGORY\tLOCATION\tSEVERITY\tETA DAYS")
	for _, text := range texts {
		res := classifier.Classify(text)
		location := resolver.Resolve(ctx, text, nil)
		assessment := estimator.Estimate(res, location)
		est := predict.Resolution(string(res.Category), string(res.Subcategory))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d-%d\n",
			truncate(text, 40), res.Category, res.Subcategory, location,
			assessment.Severity, est.MinDays, est.MaxDays)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
