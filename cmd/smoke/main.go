// Command smoke exercises a running API end to end: obtain a token, submit
// a complaint, complete the generated mission twice with the same proof, and
// verify the reward is credited exactly once.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type tokenResponse struct {
	Token string `json:"token"`
	User  struct {
		ID      string `json:"id"`
		Credits int64  `json:"credits"`
	} `json:"user"`
}

type submitResponse struct {
	Issue struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Location string `json:"location"`
	} `json:"issue"`
	Mission struct {
		ID string `json:"id"`
	} `json:"mission"`
}

type completionResponse struct {
	ProofRef    string `json:"proof_ref"`
	Credited    bool   `json:"credited"`
	CreditDelta int64  `json:"credit_delta"`
}

func main() {
	baseURL := os.Getenv("CIVIC_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	email := fmt.Sprintf("smoke-%d@example.org", rand.Int63())

	var tok tokenResponse
	if err := call(ctx, client, baseURL, "/v1/auth/token", "", map[string]any{"email": email}, &tok); err != nil {
		log.Fatalf("issue token: %v", err)
	}

	var submitted submitResponse
	err := call(ctx, client, baseURL, "/v1/issues", tok.Token, map[string]any{
		"reporter_id": tok.User.ID,
		"text":        "Streetlight not working in Dwarka near the bus stop",
	}, &submitted)
	if err != nil {
		log.Fatalf("submit issue: %v", err)
	}
	if submitted.Mission.ID == "" {
		log.Fatal("no mission generated for issue")
	}

	proof := map[string]any{
		"before_hash": fmt.Sprintf("smoke-before-%d", rand.Int63()),
		"after_hash":  fmt.Sprintf("smoke-after-%d", rand.Int63()),
	}
	completePath := "/v1/missions/" + submitted.Mission.ID + "/complete"

	var first completionResponse
	if err := call(ctx, client, baseURL, completePath, tok.Token, proof, &first); err != nil {
		log.Fatalf("first completion: %v", err)
	}
	if !first.Credited || first.CreditDelta <= 0 {
		log.Fatalf("first completion not credited: %+v", first)
	}

	var second completionResponse
	if err := call(ctx, client, baseURL, completePath, tok.Token, proof, &second); err != nil {
		log.Fatalf("second completion: %v", err)
	}
	if second.Credited || second.CreditDelta != 0 {
		log.Fatalf("replay credited again: %+v", second)
	}
	if second.ProofRef != first.ProofRef {
		log.Fatalf("proof ref changed on replay: %q vs %q", first.ProofRef, second.ProofRef)
	}

	fmt.Printf("smoke passed: issue=%s mission=%s delta=%d proof=%s\n",
		submitted.Issue.ID, submitted.Mission.ID, first.CreditDelta, first.ProofRef)
}

func call(ctx context.Context, client *http.Client, baseURL, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s: %s", path, resp.Status, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
