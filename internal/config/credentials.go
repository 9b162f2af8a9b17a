package config

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// ServiceCredential is the service account used to call Firebase and to sign
// custom tokens. It is loaded once at startup and passed to the clients that
// need it.
type ServiceCredential struct {
	ProjectID    string
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   *rsa.PrivateKey
	// Source is "env" or the credential file path.
	Source string
}

// CredentialFileNotFoundError is returned when no env credential is set and
// the service account file does not exist.
type CredentialFileNotFoundError struct {
	Path string
}

func (e *CredentialFileNotFoundError) Error() string {
	return fmt.Sprintf("firebase credential file not found at %s: set FIREBASE_PROJECT_ID, FIREBASE_PRIVATE_KEY and FIREBASE_CLIENT_EMAIL or provide the file", e.Path)
}

type credentialEnv struct {
	ProjectID    string `env:"FIREBASE_PROJECT_ID"`
	PrivateKey   string `env:"FIREBASE_PRIVATE_KEY"`
	ClientEmail  string `env:"FIREBASE_CLIENT_EMAIL"`
	PrivateKeyID string `env:"FIREBASE_PRIVATE_KEY_ID"`
}

// serviceAccountFile mirrors the JSON key file downloaded from the console.
type serviceAccountFile struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// LoadServiceCredential reads the credential from FIREBASE_* variables when
// all three are present, otherwise from the service account file at path.
func LoadServiceCredential(path string) (*ServiceCredential, error) {
	var ce credentialEnv
	if err := env.Parse(&ce); err != nil {
		return nil, fmt.Errorf("parse credential env: %w", err)
	}

	if ce.ProjectID != "" && ce.PrivateKey != "" && ce.ClientEmail != "" {
		// Hosting panels store the PEM on one line with escaped newlines.
		pem := strings.ReplaceAll(ce.PrivateKey, `\n`, "\n")
		return buildCredential(ce.ProjectID, ce.ClientEmail, ce.PrivateKeyID, pem, "env")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CredentialFileNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var sa serviceAccountFile
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("decode credential file %s: %w", path, err)
	}
	if sa.Type != "" && sa.Type != "service_account" {
		return nil, fmt.Errorf("credential file %s: unsupported type %q", path, sa.Type)
	}
	return buildCredential(sa.ProjectID, sa.ClientEmail, sa.PrivateKeyID, sa.PrivateKey, path)
}

func buildCredential(projectID, clientEmail, keyID, pem, source string) (*ServiceCredential, error) {
	switch {
	case projectID == "":
		return nil, fmt.Errorf("credential from %s: missing project id", source)
	case clientEmail == "":
		return nil, fmt.Errorf("credential from %s: missing client email", source)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("credential from %s: parse private key: %w", source, err)
	}

	return &ServiceCredential{
		ProjectID:    projectID,
		ClientEmail:  clientEmail,
		PrivateKeyID: keyID,
		PrivateKey:   key,
		Source:       source,
	}, nil
}
