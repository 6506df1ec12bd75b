package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mkbell/discme/internal/auth"
	"github.com/mkbell/discme/internal/models"
)

// LoginResult contains the result of a CLI OAuth authorization flow.
type LoginResult struct {
	User *models.User
	err  error
}

func (l *LoginResult) Error() error {
	return l.err
}

// LoginRelay handles the OAuth2 callback for the CLI's local-server flow.
// It validates state, completes the dance through the auth manager, and
// sends the persisted user through the result channel.
// Implements the Handler interface for registration with a Router.
type LoginRelay struct {
	manager     *auth.Manager
	state       string
	resultChan  chan LoginResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewLoginRelay creates a relay for one authorization attempt. The state
// token should be cryptographically random for CSRF protection.
func NewLoginRelay(manager *auth.Manager, state string) *LoginRelay {
	return &LoginRelay{
		manager:    manager,
		state:      state,
		resultChan: make(chan LoginResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *LoginRelay) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, completes the code exchange and profile
// fetch, and sends the result through the result channel.
func (h *LoginRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	state := r.URL.Query().Get("state")
	if state != h.state {
		err := fmt.Errorf("invalid state parameter")
		h.Send(LoginResult{err: err})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	user, err := h.manager.CompleteCallback(context.Background(), r.URL.Query())
	if err != nil {
		h.Send(LoginResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	h.Send(LoginResult{User: user})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// Send sends the login result through the channel (only once).
func (h *LoginRelay) Send(result LoginResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving login flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *LoginRelay) Result() <-chan LoginResult {
	return h.resultChan
}
