package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
)

// settleArgs carries the flags shared by settle-all and settle-one.
type settleArgs struct {
	TokenID    string
	ChainID    string
	GroupID    string
	FriendID   string
	Currencies []string
	Exclude    []string
	Kind       string
	Address    string
	PublicKey  string
}

// gateway is what every subcommand talks to, either over HTTP or by
// calling the services in process.
type gateway interface {
	Tokens(ctx context.Context, chainID string) ([]token.Option, error)
	Balances(ctx context.Context) (balance.Summary, error)
	Quote(ctx context.Context, tokenID, chainID string, debts []balance.Debt) (domain.Conversion, error)
	Settle(ctx context.Context, args settleArgs) (settlementsvc.Result, error)
	Submit(ctx context.Context, id, signed, rejection string) (domain.Settlement, error)
	Status(ctx context.Context, id string) (domain.Settlement, error)
}

// httpGateway calls a running splito-gateway.
type httpGateway struct {
	base       string
	session    string
	cookieName string
	client     *http.Client
}

func newHTTPGateway(base, session, cookieName string) (*httpGateway, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", base)
	}
	if strings.TrimSpace(session) == "" {
		return nil, fmt.Errorf("--session is required with --gateway")
	}
	return &httpGateway{
		base:       strings.TrimRight(u.String(), "/"),
		session:    session,
		cookieName: cookieName,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *httpGateway) Tokens(ctx context.Context, chainID string) ([]token.Option, error) {
	q := url.Values{}
	if chainID != "" {
		q.Set("chainId", chainID)
	}
	var out []token.Option
	return out, g.do(ctx, http.MethodGet, "/v1/tokens", q, nil, &out)
}

func (g *httpGateway) Balances(ctx context.Context) (balance.Summary, error) {
	var out balance.Summary
	return out, g.do(ctx, http.MethodGet, "/v1/balances", nil, nil, &out)
}

func (g *httpGateway) Quote(ctx context.Context, tokenID, chainID string, debts []balance.Debt) (domain.Conversion, error) {
	body := map[string]interface{}{"tokenId": tokenID, "chainId": chainID, "debts": debts}
	var out domain.Conversion
	return out, g.do(ctx, http.MethodPost, "/v1/quotes", nil, body, &out)
}

func (g *httpGateway) Settle(ctx context.Context, args settleArgs) (settlementsvc.Result, error) {
	body := map[string]interface{}{
		"groupId": args.GroupID,
		"tokenId": args.TokenID,
		"chainId": args.ChainID,
		"wallet": map[string]string{
			"kind":      args.Kind,
			"address":   args.Address,
			"publicKey": args.PublicKey,
		},
	}
	path := "/v1/settlements"
	if args.FriendID != "" {
		path = "/v1/friends/" + url.PathEscape(args.FriendID) + "/settlements"
		body["currencies"] = args.Currencies
	} else {
		body["exclude"] = args.Exclude
	}
	var out settlementsvc.Result
	return out, g.do(ctx, http.MethodPost, path, nil, body, &out)
}

func (g *httpGateway) Submit(ctx context.Context, id, signed, rejection string) (domain.Settlement, error) {
	body := map[string]string{"signedTx": signed, "rejection": rejection}
	var out domain.Settlement
	return out, g.do(ctx, http.MethodPost, "/v1/settlements/"+url.PathEscape(id)+"/signed", nil, body, &out)
}

func (g *httpGateway) Status(ctx context.Context, id string) (domain.Settlement, error) {
	var out domain.Settlement
	return out, g.do(ctx, http.MethodGet, "/v1/settlements/"+url.PathEscape(id), nil, nil, &out)
}

func (g *httpGateway) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := g.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: g.cookieName, Value: g.session})
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var eb httputil.ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Code != "" {
			return apperr.New(eb.Error.Code, "%s", eb.Error.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
