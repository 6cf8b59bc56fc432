package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/motiontrace/capture-sdk/internal/auth"
	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/httputil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
	"github.com/motiontrace/capture-sdk/internal/upload"
	"github.com/motiontrace/capture-sdk/internal/version"
	"github.com/motiontrace/capture-sdk/internal/wireformat"
)

func handleUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	dbPath := fs.String("db", "capture.db", "Path to the measurement store sqlite file")
	baseDir := fs.String("data-dir", ".", "Directory holding per-measurement sensor files")
	measurementID := fs.Int64("id", 0, "Measurement id to upload (required)")
	collectorURL := fs.String("collector-url", "", "Collector base URL (required)")
	token := fs.String("token", "", "Static bearer token (alternative to OIDC env vars)")
	deviceID := fs.String("device-id", "capture-cli", "Device identifier reported in upload metadata")
	fs.Parse(args)

	if *measurementID == 0 || *collectorURL == "" {
		return fmt.Errorf("-id and -collector-url are required")
	}

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	m, err := store.Load(*measurementID)
	if err != nil {
		return fmt.Errorf("load measurement %d: %w", *measurementID, err)
	}

	osfs := fsutil.OSFileSystem{}
	accel := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Acceleration))
	rot := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Rotation))
	dir := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Direction))

	payload, err := wireformat.Encode(wireformat.FromMeasurement(m, accel, rot, dir))
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	payload, err = wireformat.Compress(payload)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}

	authenticator, err := resolveAuthenticator(ctx, *token)
	if err != nil {
		return fmt.Errorf("configure authenticator: %w", err)
	}

	client := httputil.NewStandardClient(nil)
	uploader := upload.New(store, client, authenticator, timeutil.RealClock{}, *collectorURL)

	result, err := uploader.Upload(ctx, m.ID, upload.Metadata{
		DeviceID:      *deviceID,
		FormatVersion: wireformat.CurrentFormatVersion,
		OSVersion:     "capture-cli",
		AppVersion:    version.Version,
		Modality:      currentModality(m),
	}, payload)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	fmt.Printf("upload result: %s\n", result.State)
	if result.Cause != nil {
		fmt.Fprintf(os.Stderr, "cause: %v\n", result.Cause)
	}
	return nil
}

// resolveAuthenticator picks a static token authenticator when -token is
// given, else an OIDC authenticator configured from environment
// variables (CAPTURE_OIDC_ISSUER_URL, CAPTURE_OIDC_CLIENT_ID,
// CAPTURE_OIDC_REDIRECT_URL, CAPTURE_OIDC_USER_ACCOUNT_URL).
func resolveAuthenticator(ctx context.Context, token string) (auth.Authenticator, error) {
	if token != "" {
		return auth.NewStaticAuthenticator(token), nil
	}

	issuerURL := os.Getenv("CAPTURE_OIDC_ISSUER_URL")
	clientID := os.Getenv("CAPTURE_OIDC_CLIENT_ID")
	redirectURL := os.Getenv("CAPTURE_OIDC_REDIRECT_URL")
	userAccountURL := os.Getenv("CAPTURE_OIDC_USER_ACCOUNT_URL")
	if issuerURL == "" || clientID == "" {
		return nil, fmt.Errorf("no -token given and CAPTURE_OIDC_ISSUER_URL/CAPTURE_OIDC_CLIENT_ID not set")
	}

	return auth.NewOIDCAuthenticator(ctx, issuerURL, clientID, redirectURL, userAccountURL, httputil.NewStandardClient(nil))
}

func currentModality(m *measurestore.Measurement) string {
	for i := len(m.Events) - 1; i >= 0; i-- {
		if m.Events[i].Type == measurestore.EventModalityChange && m.Events[i].Value != nil {
			return *m.Events[i].Value
		}
	}
	return ""
}
