// Package main provides a CI-friendly HTTP smoke test for the Vox intake flow.
//
// It validates:
//   - operator invitation create (Bearer admin key)
//   - session start from a one-time token
//   - autosave merge
//   - completion -> immutable response
//   - token replay rejection (409 invitation_used)
//   - operator response read with decrypted answers
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Vox server base URL")
		adminKey = flag.String("admin-key", os.Getenv("VOX_INTAKE_ADMIN_KEY"), "Operator admin key (Bearer)")
		surveyID = flag.String("survey", "demo-wellbeing", "Survey ID to invite for")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*adminKey) == "" {
		fatalf("missing -admin-key (or VOX_INTAKE_ADMIN_KEY)")
	}

	c := &smokeClient{
		base:     strings.TrimRight(*baseURL, "/"),
		adminKey: *adminKey,
		http:     &http.Client{},
		timeout:  *timeout,
	}

	var invite struct {
		InvitationID string `json:"invitation_id"`
		Token        string `json:"token"`
	}
	c.mustPost("/intake/invitations/create", true, map[string]any{"survey_id": *surveyID}, http.StatusCreated, &invite)
	if invite.Token == "" || invite.InvitationID == "" {
		fatalf("invite create: missing token or invitation_id")
	}
	if *verbose {
		fmt.Printf("invitation: %s\n", invite.InvitationID)
	}

	var sess struct {
		SessionID string            `json:"session_id"`
		Status    string            `json:"status"`
		Answers   map[string]string `json:"answers"`
	}
	c.mustPost("/intake/sessions/start", false, map[string]any{"invitation_token": invite.Token}, http.StatusOK, &sess)
	if sess.SessionID == "" || sess.Status != "started" {
		fatalf("session start: id=%q status=%q", sess.SessionID, sess.Status)
	}

	c.mustPost("/intake/sessions/autosave", false, map[string]any{
		"session_id": sess.SessionID,
		"answers":    map[string]string{"full_name": "Smoke Tester"},
	}, http.StatusOK, &sess)
	if sess.Status != "in_progress" {
		fatalf("autosave: status=%q want in_progress", sess.Status)
	}
	if sess.Answers["full_name"] != "Smoke Tester" {
		fatalf("autosave: answers not merged: %v", sess.Answers)
	}

	var done struct {
		ResponseID string `json:"response_id"`
	}
	c.mustPost("/intake/sessions/complete", false, map[string]any{
		"session_id": sess.SessionID,
		"answers": map[string]string{
			"mood":         "okay",
			"health_notes": "mild headaches lately",
		},
	}, http.StatusCreated, &done)
	if done.ResponseID == "" {
		fatalf("complete: missing response_id")
	}

	c.mustPostError("/intake/sessions/start", false, map[string]any{"invitation_token": invite.Token}, http.StatusConflict, "invitation_used")

	var resp struct {
		ResponseID string `json:"response_id"`
		Answers    []struct {
			QuestionCode string `json:"question_code"`
			Value        string `json:"value"`
			Sensitive    bool   `json:"sensitive"`
		} `json:"answers"`
	}
	c.mustGet("/intake/responses?id="+url.QueryEscape(done.ResponseID), true, http.StatusOK, &resp)

	found := false
	for _, a := range resp.Answers {
		if a.QuestionCode == "health_notes" {
			found = true
			if !a.Sensitive {
				fatalf("response read: health_notes not marked sensitive")
			}
			if a.Value != "mild headaches lately" {
				fatalf("response read: sensitive answer not decrypted: %q", a.Value)
			}
		}
	}
	if !found {
		fatalf("response read: health_notes answer missing")
	}

	fmt.Printf("OK: invitation=%s session=%s response=%s\n", invite.InvitationID, sess.SessionID, done.ResponseID)
}

type smokeClient struct {
	base     string
	adminKey string
	http     *http.Client
	timeout  time.Duration
}

func (c *smokeClient) mustPost(path string, operator bool, body any, wantStatus int, out any) {
	status, data := c.do(http.MethodPost, path, operator, body)
	if status != wantStatus {
		fatalf("POST %s: status=%d want=%d body=%s", path, status, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("POST %s: decode response: %v", path, err)
		}
	}
}

func (c *smokeClient) mustPostError(path string, operator bool, body any, wantStatus int, wantCode string) {
	status, data := c.do(http.MethodPost, path, operator, body)
	if status != wantStatus {
		fatalf("POST %s: status=%d want=%d body=%s", path, status, wantStatus, data)
	}
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		fatalf("POST %s: decode error body: %v", path, err)
	}
	if eb.Error.Code != wantCode {
		fatalf("POST %s: code=%q want=%q", path, eb.Error.Code, wantCode)
	}
}

func (c *smokeClient) mustGet(path string, operator bool, wantStatus int, out any) {
	status, data := c.do(http.MethodGet, path, operator, nil)
	if status != wantStatus {
		fatalf("GET %s: status=%d want=%d body=%s", path, status, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("GET %s: decode response: %v", path, err)
		}
	}
}

func (c *smokeClient) do(method, path string, operator bool, body any) (int, []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("%s %s: marshal body: %v", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		fatalf("%s %s: build request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if operator {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	return resp.StatusCode, data
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
