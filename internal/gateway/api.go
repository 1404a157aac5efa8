package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"finboard/internal/core"
)

type (
	// AuthResponse is returned by the credential exchange endpoints.
	AuthResponse struct {
		AccessToken string           `json:"access_token"`
		TokenType   string           `json:"token_type"`
		User        core.UserProfile `json:"user"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	AnalyzeRequest struct {
		Income   float64          `json:"income"`
		Profile  core.RiskProfile `json:"profile"`
		Expenses []core.Expense   `json:"expenses"`
	}

	Goal struct {
		ID       string  `json:"_id"`
		Name     string  `json:"name"`
		Target   float64 `json:"target"`
		Current  float64 `json:"current"`
		Deadline *string `json:"deadline"`
	}

	GoalInput struct {
		Name     string  `json:"name"`
		Target   float64 `json:"target"`
		Current  float64 `json:"current"`
		Deadline *string `json:"deadline"`
	}

	// GoalUpdate carries the fields to change. Nil fields are left alone.
	GoalUpdate struct {
		Name     *string  `json:"name,omitempty"`
		Target   *float64 `json:"target,omitempty"`
		Current  *float64 `json:"current,omitempty"`
		Deadline *string  `json:"deadline,omitempty"`
	}

	RecurringExpense struct {
		Category   string  `json:"category"`
		Amount     float64 `json:"amount"`
		Frequency  string  `json:"frequency"`
		AnnualCost float64 `json:"annual_cost"`
	}

	RecurringSummary struct {
		Recurring    []RecurringExpense `json:"recurring"`
		TotalMonthly float64            `json:"total_monthly"`
		TotalAnnual  float64            `json:"total_annual"`
		Suggestions  []string           `json:"suggestions"`
	}

	MonthlyTrend struct {
		Month         string  `json:"month"`
		TotalExpenses float64 `json:"total_expenses"`
	}

	ChatContext struct {
		Income   float64        `json:"income"`
		Expenses []core.Expense `json:"expenses"`
		Goals    []Goal         `json:"goals"`
	}

	ChatReply struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
)

// Progress is the share of the target already saved, capped at 100.
func (g Goal) Progress() float64 {
	if g.Target <= 0 {
		return 0
	}
	p := g.Current / g.Target * 100
	if p > 100 {
		return 100
	}
	return p
}

// Signup creates a pending account. Duplicate handling is up to the
// backend.
func (c *Client) Signup(ctx context.Context, email, password string) (MessageResponse, error) {
	var out MessageResponse
	cl, err := jsonCall(http.MethodPost, "/auth/signup", "/auth/signup", credentials(email, password))
	if err != nil {
		return out, err
	}
	cl.anonymous = true
	return out, c.do(ctx, cl, &out)
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	cl, err := jsonCall(http.MethodPost, "/auth/login", "/auth/login", credentials(email, password))
	if err != nil {
		return out, err
	}
	cl.anonymous = true
	return out, c.do(ctx, cl, &out)
}

// GoogleLogin exchanges a Google ID token for a session credential.
func (c *Client) GoogleLogin(ctx context.Context, idToken string) (AuthResponse, error) {
	var out AuthResponse
	cl, err := jsonCall(http.MethodPost, "/auth/google", "/auth/google", map[string]string{"token": idToken})
	if err != nil {
		return out, err
	}
	cl.anonymous = true
	return out, c.do(ctx, cl, &out)
}

func (c *Client) VerifyEmail(ctx context.Context, token string) (MessageResponse, error) {
	var out MessageResponse
	cl := call{
		method:    http.MethodGet,
		route:     "/auth/verify/{token}",
		path:      "/auth/verify/" + url.PathEscape(token),
		anonymous: true,
	}
	return out, c.do(ctx, cl, &out)
}

// Me resolves the profile behind the current credential.
func (c *Client) Me(ctx context.Context) (core.UserProfile, error) {
	var out core.UserProfile
	return out, c.do(ctx, call{method: http.MethodGet, route: "/auth/me", path: "/auth/me"}, &out)
}

func (c *Client) Analyze(ctx context.Context, in AnalyzeRequest) (core.AnalysisResult, error) {
	cl, err := jsonCall(http.MethodPost, "/analyze", "/analyze", in)
	if err != nil {
		return core.AnalysisResult{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, cl, &raw); err != nil {
		return core.AnalysisResult{}, err
	}
	return core.NewAnalysisResult(raw)
}

func (c *Client) ListGoals(ctx context.Context) ([]Goal, error) {
	var out struct {
		Goals []Goal `json:"goals"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, route: "/goals", path: "/goals"}, &out); err != nil {
		return nil, err
	}
	return out.Goals, nil
}

func (c *Client) CreateGoal(ctx context.Context, in GoalInput) error {
	cl, err := jsonCall(http.MethodPost, "/goals", "/goals", in)
	if err != nil {
		return err
	}
	return c.do(ctx, cl, nil)
}

func (c *Client) UpdateGoal(ctx context.Context, id string, in GoalUpdate) error {
	cl, err := jsonCall(http.MethodPut, "/goals/{id}", "/goals/"+url.PathEscape(id), in)
	if err != nil {
		return err
	}
	return c.do(ctx, cl, nil)
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, call{method: http.MethodDelete, route: "/goals/{id}", path: "/goals/" + url.PathEscape(id)}, nil)
}

// GoalSuggestions asks the backend for savings tips for one goal.
func (c *Client) GoalSuggestions(ctx context.Context, id string, income float64) (string, error) {
	var out struct {
		Suggestions string `json:"suggestions"`
	}
	cl := call{
		method: http.MethodGet,
		route:  "/goals/{id}/suggestions",
		path:   "/goals/" + url.PathEscape(id) + "/suggestions",
		query:  url.Values{"income": {strconv.FormatFloat(income, 'f', -1, 64)}},
	}
	if err := c.do(ctx, cl, &out); err != nil {
		return "", err
	}
	return out.Suggestions, nil
}

func (c *Client) DetectRecurring(ctx context.Context, expenses []core.Expense) (RecurringSummary, error) {
	var out RecurringSummary
	cl, err := jsonCall(http.MethodPost, "/detect-recurring", "/detect-recurring", map[string][]core.Expense{"expenses": nonNil(expenses)})
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, cl, &out)
}

func (c *Client) MonthlyTrends(ctx context.Context, months int) ([]MonthlyTrend, error) {
	var out struct {
		Trends []MonthlyTrend `json:"trends"`
	}
	cl := call{
		method: http.MethodGet,
		route:  "/trends/monthly",
		path:   "/trends/monthly",
		query:  url.Values{"months": {strconv.Itoa(months)}},
	}
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out.Trends, nil
}

// CategoryTrends returns spending per category over the last months.
func (c *Client) CategoryTrends(ctx context.Context, months int) (map[string]float64, error) {
	var out struct {
		Categories map[string]float64 `json:"categories"`
	}
	cl := call{
		method: http.MethodGet,
		route:  "/trends/categories",
		path:   "/trends/categories",
		query:  url.Values{"months": {strconv.Itoa(months)}},
	}
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	if out.Categories == nil {
		out.Categories = map[string]float64{}
	}
	return out.Categories, nil
}

func (c *Client) Chat(ctx context.Context, message string, chatCtx ChatContext) (ChatReply, error) {
	var out ChatReply
	chatCtx.Expenses = nonNil(chatCtx.Expenses)
	if chatCtx.Goals == nil {
		chatCtx.Goals = []Goal{}
	}
	payload := struct {
		Message string      `json:"message"`
		Context ChatContext `json:"context"`
	}{message, chatCtx}
	cl, err := jsonCall(http.MethodPost, "/chat", "/chat", payload)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, cl, &out)
}

func (c *Client) ClearChat(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodPost, route: "/chat/clear", path: "/chat/clear"}, nil)
}

// UploadPDF sends a bank statement and returns the backend's raw
// "expenses" payload, which is either a list of rows or a category map.
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var out struct {
		Expenses json.RawMessage `json:"expenses"`
	}
	cl := call{
		method:      http.MethodPost,
		route:       "/upload-pdf",
		path:        "/upload-pdf",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out.Expenses, nil
}

func credentials(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func nonNil(expenses []core.Expense) []core.Expense {
	if expenses == nil {
		return []core.Expense{}
	}
	return expenses
}
