// Package slotclient provides a client for the slotcore settlement API.
//
// The client wraps the HTTP API exposed by the settlement server:
// player authentication, wallet reads, the game catalogue and the spin
// endpoint that settles rounds.
//
// # Basic Usage
//
//	client := slotclient.NewClient(&slotclient.ClientConfig{
//	    BaseURL: "https://rgs.example.net",
//	})
//
//	// Authenticate player
//	login, err := client.Login(ctx, "player1", "secret-password")
//
//	// Settle a round
//	result, err := client.Spin(ctx, &slotclient.SpinRequest{
//	    GameID:   7,
//	    BetLevel: 0.5,
//	    Lines:    10,
//	})
//
// A successful Login stores the bearer token on the client; subsequent
// calls reuse it until Logout.
//
// # Error Handling
//
// API errors are returned as *APIError with a Code field indicating the
// error type:
//
//	result, err := client.Spin(ctx, req)
//	if apiErr, ok := err.(*APIError); ok {
//	    switch apiErr.Code {
//	    case slotclient.ErrInsufficientBalance:
//	        // Handle insufficient funds
//	    case slotclient.ErrGamingDisabled:
//	        // Handle the operator kill-switch
//	    }
//	}
package slotclient
