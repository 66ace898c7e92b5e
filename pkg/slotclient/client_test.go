package slotclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testToken = "test-bearer-token"

// mockServer returns a test server that validates the request and
// responds with the given payload wrapped in the API envelope.
func mockServer(t *testing.T, method, expectedPath string, validateBody func(body []byte) error, data interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			t.Errorf("Expected %s, got %s", method, r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if r.URL.Path != expectedPath {
			t.Errorf("Expected path %s, got %s", expectedPath, r.URL.Path)
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		if validateBody != nil {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				t.Errorf("Failed to read body: %v", err)
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
			if err := validateBody(body); err != nil {
				t.Errorf("Body validation failed: %v", err)
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
		}

		payload, _ := json.Marshal(data)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope{Success: true, Data: payload})
	}))
}

// errorServer returns a test server that always responds with an API error.
func errorServer(code, message string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(envelope{
			Success: false,
			Error:   &APIError{Code: code, Message: message},
		})
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(&ClientConfig{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		RetryCount: 1,
	})
}

func TestLogin_Success(t *testing.T) {
	server := mockServer(t, http.MethodPost, "/api/v1/auth/login", func(body []byte) error {
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			return err
		}
		if req["username"] != "player1" {
			t.Errorf("Expected username 'player1', got '%s'", req["username"])
		}
		return nil
	}, LoginResult{
		Token:     testToken,
		SessionID: "session-123",
		Player:    PlayerInfo{ID: 42, Username: "player1", ShopID: 1},
	})
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Login(context.Background(), "player1", "secret-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if result.Token != testToken {
		t.Errorf("Expected token '%s', got '%s'", testToken, result.Token)
	}
	if result.Player.ID != 42 {
		t.Errorf("Expected player id 42, got %d", result.Player.ID)
	}
	if client.Token() != testToken {
		t.Error("Login should store the bearer token on the client")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server := errorServer(ErrInvalidCredentials, "Invalid username or password")
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Login(context.Background(), "player1", "wrong")
	if err == nil {
		t.Fatal("Expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Code != ErrInvalidCredentials {
		t.Errorf("Expected code %s, got %s", ErrInvalidCredentials, apiErr.Code)
	}
	if client.Token() != "" {
		t.Error("Failed login must not store a token")
	}
}

func TestSpin_Success(t *testing.T) {
	server := mockServer(t, http.MethodPost, "/api/v1/rounds/spin", func(body []byte) error {
		var req SpinRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return err
		}
		if req.GameID != 7 {
			t.Errorf("Expected game id 7, got %d", req.GameID)
		}
		if req.BetLevel != 0.5 {
			t.Errorf("Expected bet level 0.5, got %f", req.BetLevel)
		}
		if req.Lines != 10 {
			t.Errorf("Expected 10 lines, got %d", req.Lines)
		}
		return nil
	}, SpinResult{
		RoundID: "round-abc",
		Balance: 995.0,
		AllBet:  5.0,
		Win:     2.5,
	})
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	result, err := client.Spin(context.Background(), &SpinRequest{
		GameID:   7,
		BetLevel: 0.5,
		Lines:    10,
	})
	if err != nil {
		t.Fatalf("Spin failed: %v", err)
	}

	if result.RoundID != "round-abc" {
		t.Errorf("Expected round id 'round-abc', got '%s'", result.RoundID)
	}
	if result.Balance != 995.0 {
		t.Errorf("Expected balance 995.0, got %f", result.Balance)
	}
	if result.Win != 2.5 {
		t.Errorf("Expected win 2.5, got %f", result.Win)
	}
}

func TestSpin_InsufficientBalance(t *testing.T) {
	server := errorServer(ErrInsufficientBalance, "Insufficient balance")
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	_, err := client.Spin(context.Background(), &SpinRequest{GameID: 7, BetLevel: 100, Lines: 10})
	if err == nil {
		t.Fatal("Expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Code != ErrInsufficientBalance {
		t.Errorf("Expected code %s, got %s", ErrInsufficientBalance, apiErr.Code)
	}
}

func TestBalance_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
			t.Errorf("Expected bearer token header, got '%s'", got)
		}
		payload, _ := json.Marshal(BalanceResult{Balance: 100, Currency: "USD"})
		json.NewEncoder(w).Encode(envelope{Success: true, Data: payload})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	balance, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Balance != 100 {
		t.Errorf("Expected balance 100, got %f", balance.Balance)
	}
	if balance.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", balance.Currency)
	}
}

func TestGames_Success(t *testing.T) {
	server := mockServer(t, http.MethodGet, "/api/v1/games", nil, []GameInfo{
		{ID: 1, Name: "fortune-slots", View: true, Denominations: []float64{0.01, 0.1}},
		{ID: 2, Name: "lucky-seven", View: true, Denominations: []float64{1.0}},
	})
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	games, err := client.Games(context.Background())
	if err != nil {
		t.Fatalf("Games failed: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("Expected 2 games, got %d", len(games))
	}
	if games[0].Name != "fortune-slots" {
		t.Errorf("Expected 'fortune-slots', got '%s'", games[0].Name)
	}
}

func TestHistory_LimitQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("Expected limit=5, got '%s'", got)
		}
		payload, _ := json.Marshal([]RoundLogEntry{
			{AllBet: 1.0, Lines: 10, ReportWin: 0, SlotEvent: "bet"},
		})
		json.NewEncoder(w).Encode(envelope{Success: true, Data: payload})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	history, err := client.History(context.Background(), 5)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(history))
	}
	if history[0].SlotEvent != "bet" {
		t.Errorf("Expected slot event 'bet', got '%s'", history[0].SlotEvent)
	}
}

func TestLogout_ClearsToken(t *testing.T) {
	server := mockServer(t, http.MethodPost, "/api/v1/auth/logout", nil,
		map[string]string{"message": "Logged out successfully"})
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(testToken)

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if client.Token() != "" {
		t.Error("Logout should clear the stored token")
	}
}

func TestHealth_Success(t *testing.T) {
	server := mockServer(t, http.MethodGet, "/health", nil, HealthResult{
		Status: "healthy",
		RNG:    RNGHealth{Healthy: true, ChiSquare: 98.4, ChiSquarePassed: true},
	})
	defer server.Close()

	client := newTestClient(server.URL)
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", health.Status)
	}
	if !health.RNG.Healthy {
		t.Error("Expected healthy RNG")
	}
}
