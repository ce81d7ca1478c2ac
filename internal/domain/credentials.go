package domain

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/coachsync/internal/garmin"
	"example.com/coachsync/internal/vault"
)

// Guidance strings surfaced to users per failure kind. Kept distinct on
// purpose: "re-enter credentials" and "try again later" call for different
// user action.
const (
	msgAuthFailed = "Authentication failed. Please verify your Garmin Connect email and password. " +
		"If the account uses two-factor authentication you may need an app-specific password."
	msgConnectivityFailed = "Could not connect to Garmin Connect servers. This may be a temporary issue. " +
		"Please try again in a few minutes."
	msgUnexpectedFailure = "Unexpected error communicating with Garmin Connect. Please try again or contact support."
)

// guidanceFor maps a fault kind onto the user-facing remediation text.
func guidanceFor(kind garmin.FaultKind) string {
	switch kind {
	case garmin.FaultAuth:
		return msgAuthFailed
	case garmin.FaultConnectivity:
		return msgConnectivityFailed
	default:
		return msgUnexpectedFailure
	}
}

// ConnectionStatus reports the outcome of a credential probe.
type ConnectionStatus struct {
	Connected   bool
	ProfileName string
	Message     string
	Kind        garmin.FaultKind
}

// CredentialStatus describes the stored credential record for display.
type CredentialStatus struct {
	Connected   bool
	GarminEmail string
	LastSync    *time.Time
	Error       *string
}

// CredentialService owns the Garmin credential lifecycle: connect, probe,
// status, disconnect. Credentials are encrypted before they ever reach a
// repository and replaced wholesale on reconnect.
type CredentialService struct {
	repo      CredentialRepository
	vault     *vault.Vault
	connector Connector
	log       *log.Logger
	now       func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(repo CredentialRepository, v *vault.Vault, connector Connector) *CredentialService {
	return &CredentialService{
		repo:      repo,
		vault:     v,
		connector: connector,
		log:       log.New(log.Writer(), "[credentials] ", log.LstdFlags),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Connect encrypts and stores the supplied credentials, probing connectivity
// first. The record is persisted either way so a failed probe leaves the
// error visible on the status endpoint.
func (s *CredentialService) Connect(ctx context.Context, userID, email, password string) (ConnectionStatus, error) {
	emailEnc, err := s.vault.Encrypt(email)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("encrypt email: %w", err)
	}
	passwordEnc, err := s.vault.Encrypt(password)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("encrypt password: %w", err)
	}

	status := s.probe(ctx, email, password)

	cred := Credential{
		UserID:            userID,
		EmailEncrypted:    emailEnc,
		PasswordEncrypted: passwordEnc,
		Connected:         status.Connected,
		UpdatedAt:         s.now(),
	}
	if status.Connected {
		now := s.now()
		cred.LastSync = &now
	} else {
		msg := status.Message
		cred.ConnectionError = &msg
	}

	if err := s.repo.Upsert(ctx, cred); err != nil {
		return ConnectionStatus{}, fmt.Errorf("store credentials: %w", err)
	}
	return status, nil
}

// Status reports the stored connection state. The email is decrypted
// best-effort for display; an unreadable ciphertext simply leaves it blank.
func (s *CredentialService) Status(ctx context.Context, userID string) (CredentialStatus, error) {
	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		return CredentialStatus{}, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil {
		return CredentialStatus{}, ErrCredentialNotFound
	}

	status := CredentialStatus{
		Connected: cred.Connected,
		LastSync:  cred.LastSync,
		Error:     cred.ConnectionError,
	}
	if email, err := s.vault.Decrypt(cred.EmailEncrypted); err == nil {
		status.GarminEmail = email
	} else {
		s.log.Printf("stored garmin email unreadable for user %s: %v", userID, err)
	}
	return status, nil
}

// Test re-probes the stored credentials and persists the outcome.
func (s *CredentialService) Test(ctx context.Context, userID string) (ConnectionStatus, error) {
	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil {
		return ConnectionStatus{}, ErrCredentialNotFound
	}

	email, password, err := s.decryptPair(cred)
	var status ConnectionStatus
	if err != nil {
		s.log.Printf("stored credentials unreadable for user %s: %v", userID, err)
		status = ConnectionStatus{Connected: false, Message: msgUnexpectedFailure, Kind: garmin.FaultUnexpected}
	} else {
		status = s.probe(ctx, email, password)
	}

	cred.Connected = status.Connected
	cred.UpdatedAt = s.now()
	if status.Connected {
		now := s.now()
		cred.LastSync = &now
		cred.ConnectionError = nil
	} else {
		msg := status.Message
		cred.ConnectionError = &msg
	}
	if err := s.repo.Upsert(ctx, *cred); err != nil {
		return ConnectionStatus{}, fmt.Errorf("store probe outcome: %w", err)
	}
	return status, nil
}

// Disconnect removes the credential record entirely.
func (s *CredentialService) Disconnect(ctx context.Context, userID string) error {
	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil {
		return ErrCredentialNotFound
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (s *CredentialService) probe(ctx context.Context, email, password string) ConnectionStatus {
	session, err := s.connector.Login(ctx, email, password)
	if err != nil {
		kind := garmin.KindOf(err)
		s.log.Printf("garmin login probe failed: %v", err)
		return ConnectionStatus{Connected: false, Message: guidanceFor(kind), Kind: kind}
	}

	name, err := session.FetchProfileName(ctx)
	if err != nil {
		kind := garmin.KindOf(err)
		s.log.Printf("garmin profile probe failed: %v", err)
		return ConnectionStatus{Connected: false, Message: guidanceFor(kind), Kind: kind}
	}

	return ConnectionStatus{
		Connected:   true,
		ProfileName: name,
		Message:     fmt.Sprintf("Successfully connected to Garmin Connect as %s", name),
	}
}

func (s *CredentialService) decryptPair(cred *Credential) (string, string, error) {
	email, err := s.vault.Decrypt(cred.EmailEncrypted)
	if err != nil {
		return "", "", err
	}
	password, err := s.vault.Decrypt(cred.PasswordEncrypted)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}
