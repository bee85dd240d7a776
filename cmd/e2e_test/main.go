package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8080"

func main() {
	if v := os.Getenv("E2E_BASE_URL"); v != "" {
		baseURL = v
	}
	symbol := "AAPL"
	if v := os.Getenv("E2E_SYMBOL"); v != "" {
		symbol = v
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Start from a clean ledger
	checkEndpoint("DELETE", "/delete_all_users", nil, 204)
	checkEndpoint("POST", "/init_user", nil, 200)
	checkEndpoint("POST", "/init_user", nil, 200)

	// 3. Quote, then empty portfolio
	checkEndpoint("GET", "/stock/"+symbol, nil, 200)
	checkEndpoint("GET", "/stocks", nil, 200)
	before := money()

	// 4. Buy and verify holdings
	checkEndpoint("POST", "/buy", map[string]interface{}{"symbol": symbol, "quantity": 3}, 200)
	checkEndpoint("GET", "/stocks", nil, 200)

	// 5. Rejections leave state alone
	checkEndpoint("POST", "/sell", map[string]interface{}{"symbol": symbol, "quantity": 4}, 400)
	checkEndpoint("POST", "/buy", map[string]interface{}{"symbol": symbol, "quantity": 1.5}, 400)
	checkEndpoint("POST", "/sell", map[string]interface{}{"symbol": "E2EZZZ", "quantity": 1}, 404)

	// 6. Sell everything; the holding disappears
	checkEndpoint("POST", "/sell", map[string]interface{}{"symbol": symbol, "quantity": 3}, 200)
	body := checkEndpoint("GET", "/stocks", nil, 200)
	if string(bytes.TrimSpace(body)) != "[]" {
		log.Fatalf("Expected empty portfolio after selling everything, got %s", body)
	}
	fmt.Printf("Money before %s, after round trip %s\n", before, money())

	// 7. Reset
	checkEndpoint("DELETE", "/delete_all_users", nil, 204)
	checkEndpoint("GET", "/money", nil, 404)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody
}

func money() string {
	var res map[string]string
	if err := json.Unmarshal(checkEndpoint("GET", "/money", nil, 200), &res); err != nil {
		log.Fatalf("Decode money failed: %v", err)
	}
	return res["money"]
}
