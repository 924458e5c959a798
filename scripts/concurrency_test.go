//go:build ignore
// +build ignore

// Package main hammers POST /rent against a running server to check that a
// book is never lent beyond its stock.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]
//
// or
//
//	BOOK_ID=<uuid> USER_IDS=<uuid1>,<uuid2>,... go run ./scripts/concurrency_test.go
//
// Every user asks for QUANTITY copies (default 1) at the same moment. The run
// fails if more copies were lent than the book had on the shelf, or if the
// book's available_copies no longer matches what was lent.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type rentResult struct {
	UserID     string
	StatusCode int
	Err        error
}

type bookSnapshot struct {
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	quantity := 1
	if raw := os.Getenv("QUANTITY"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil || q < 1 {
			log.Fatalf("QUANTITY must be a positive integer, got %q", raw)
		}
		quantity = q
	}

	bookID := os.Getenv("BOOK_ID")
	var userIDs []string
	if env := os.Getenv("USER_IDS"); env != "" {
		userIDs = strings.Split(env, ",")
	}
	if args := os.Args[1:]; len(args) >= 1 {
		bookID = args[0]
		if len(args) >= 2 {
			userIDs = args[1:]
		}
	}
	if bookID == "" || len(userIDs) == 0 {
		log.Fatal("usage: go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	before, err := fetchBook(client, serverAddr, bookID)
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("server=%s book=%s users=%d quantity=%d available=%d/%d\n",
		serverAddr, bookID, len(userIDs), quantity, before.AvailableCopies, before.TotalCopies)

	results := make([]rentResult, len(userIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptRent(client, serverAddr, bookID, userID, quantity)
		}(i, strings.TrimSpace(uid))
	}
	close(start)
	wg.Wait()

	var lent, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-36s err=%v\n", r.UserID, r.Err)
		case r.StatusCode == http.StatusCreated:
			lent++
			fmt.Printf("  [RENT] user=%-36s\n", r.UserID)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [FULL] user=%-36s\n", r.UserID)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-36s status=%d\n", r.UserID, r.StatusCode)
		}
	}

	after, err := fetchBook(client, serverAddr, bookID)
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("\nrented=%d rejected=%d failed=%d available_after=%d\n",
		lent, conflicts, failures, after.AvailableCopies)

	ok := true
	if lent*quantity > before.AvailableCopies {
		fmt.Printf("[BROKEN] lent %d copies but only %d were available\n", lent*quantity, before.AvailableCopies)
		ok = false
	}
	if want := before.AvailableCopies - lent*quantity; after.AvailableCopies != want {
		fmt.Printf("[BROKEN] available_copies is %d, expected %d\n", after.AvailableCopies, want)
		ok = false
	}
	if failures > 0 {
		fmt.Printf("[WARN] %d request(s) failed; check the server logs\n", failures)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("inventory consistent")
}

func attemptRent(client *http.Client, serverAddr, bookID, userID string, quantity int) rentResult {
	body, _ := json.Marshal(map[string]any{"user_id": userID, "book_id": bookID, "quantity": quantity})
	resp, err := client.Post(serverAddr+"/rent", "application/json", bytes.NewReader(body))
	if err != nil {
		return rentResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return rentResult{UserID: userID, StatusCode: resp.StatusCode}
}

func fetchBook(client *http.Client, serverAddr, bookID string) (bookSnapshot, error) {
	var b bookSnapshot
	resp, err := client.Get(serverAddr + "/books/" + bookID)
	if err != nil {
		return b, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return b, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	return b, json.NewDecoder(resp.Body).Decode(&b)
}
