package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ServiceAccountKey is the subset of a service account JSON key the adaptor reads
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// Credentials selects how the adaptor authenticates. The first configured
// source wins in field order; with none set Application Default Credentials
// are used.
type Credentials struct {
	JSON string // service account key content, e.g. from GOOGLE_CREDENTIALS
	File string // path to a service account key file

	// ClientEmail and PrivateKey authenticate as a service account without a
	// key file. Both are required together.
	ClientEmail string
	PrivateKey  string
}

// NewFromCredentials creates a new SheetsAdaptor from whichever credential
// source is configured
func NewFromCredentials(ctx context.Context, config Config, creds Credentials) (*SheetsAdaptor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var source interface{}
	switch {
	case creds.JSON != "":
		data, err := normalizeKeyJSON([]byte(creds.JSON))
		if err != nil {
			return nil, err
		}
		source = data
	case creds.File != "":
		source = creds.File
	case creds.ClientEmail != "" || creds.PrivateKey != "":
		if creds.ClientEmail == "" || creds.PrivateKey == "" {
			return nil, fmt.Errorf("client email and private key must both be set")
		}
		source = &ServiceAccountKey{
			Type:        "service_account",
			ClientEmail: creds.ClientEmail,
			PrivateKey:  strings.ReplaceAll(creds.PrivateKey, `\n`, "\n"),
		}
	default:
		return NewWithDefaultCredentials(ctx, config)
	}

	tokenSource, err := CreateTokenSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return NewSheetsAdaptor(ctx, config, option.WithTokenSource(tokenSource))
}

// NewWithDefaultCredentials creates a new SheetsAdaptor using Application Default Credentials
func NewWithDefaultCredentials(ctx context.Context, config Config) (*SheetsAdaptor, error) {
	tokenSource, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get default token source: %w", err)
	}
	return NewSheetsAdaptor(ctx, config, option.WithTokenSource(tokenSource))
}

// ParseServiceAccountJSON parses and checks a service account key
func ParseServiceAccountJSON(jsonData []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(jsonData, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid key type: %s (expected: service_account)", key.Type)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("missing required fields in service account key")
	}
	return &key, nil
}

// CreateTokenSource creates an oauth2.TokenSource from a key file path, raw
// key JSON or an already parsed key
func CreateTokenSource(ctx context.Context, credentials interface{}) (oauth2.TokenSource, error) {
	switch cred := credentials.(type) {
	case string:
		data, err := os.ReadFile(cred)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return tokenSourceFromJSON(ctx, data)
	case []byte:
		return tokenSourceFromJSON(ctx, cred)
	case *ServiceAccountKey:
		return tokenSourceFromKey(ctx, cred), nil
	default:
		return nil, fmt.Errorf("unsupported credential type: %T", credentials)
	}
}

func tokenSourceFromJSON(ctx context.Context, data []byte) (oauth2.TokenSource, error) {
	key, err := ParseServiceAccountJSON(data)
	if err != nil {
		return nil, err
	}
	return tokenSourceFromKey(ctx, key), nil
}

func tokenSourceFromKey(ctx context.Context, key *ServiceAccountKey) oauth2.TokenSource {
	tokenURL := key.TokenURI
	if tokenURL == "" {
		tokenURL = google.JWTTokenURL
	}
	cfg := &jwt.Config{
		Email:        key.ClientEmail,
		PrivateKey:   []byte(key.PrivateKey),
		PrivateKeyID: key.PrivateKeyID,
		Scopes:       []string{sheets.SpreadsheetsScope},
		TokenURL:     tokenURL,
	}
	return cfg.TokenSource(ctx)
}

// normalizeKeyJSON restores newlines in a private key that was stored with
// escaped "\n" sequences, as environment variables often are.
func normalizeKeyJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credentials JSON: %w", err)
	}
	key, ok := raw["private_key"].(string)
	if !ok || !strings.Contains(key, `\n`) {
		return data, nil
	}
	raw["private_key"] = strings.ReplaceAll(key, `\n`, "\n")
	return json.Marshal(raw)
}
