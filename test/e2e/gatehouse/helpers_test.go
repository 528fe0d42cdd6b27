//go:build e2e

package gatehouse_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for gatehouse end-to-end tests.
 * This includes container setup, bootstrap and assertions.
 */

const (
	testImageName = "gatehouse-test:latest"

	bootstrapToken = "test-bootstrap-token-12345"
	ownerEmail     = "owner@example.com"
	ownerPassword  = "Owner-Password-1"
)

// TestMain builds the Docker image once before all tests and removes it
// after they complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building gatehouse Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up gatehouse Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/gatehouse/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// baseEnv is the container environment shared by every test. Rate limits are
// raised so ordinary tests never trip them.
func baseEnv() map[string]string {
	return map[string]string{
		"BOOTSTRAP_TOKEN":             bootstrapToken,
		"GATEHOUSE_ISSUER":            "gatehouse-e2e",
		"GATEHOUSE_COOKIE_SECURE":     "false",
		"ENV":                         "test",
		"LOG_LEVEL":                   "info",
		"LOG_FORMAT":                  "json",
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
}

// setupContainer starts gatehouse with env layered over baseEnv and returns
// its base URL. Keys mapped to "" are removed.
func setupContainer(t *testing.T, env map[string]string) string {
	t.Helper()
	ctx := context.Background()

	merged := baseEnv()
	for k, v := range env {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          merged,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// bootstrapOwner creates the owner account and returns a client carrying a
// full owner session.
func bootstrapOwner(t *testing.T, client *authsdk.Client) *authsdk.Client {
	t.Helper()
	ctx := t.Context()

	resp, err := client.Bootstrap(ctx, bootstrapToken, authsdk.BootstrapRequest{
		Email:       ownerEmail,
		Password:    ownerPassword,
		DisplayName: "Owner",
	})
	require.NoError(t, err, "Bootstrap should succeed")
	require.NotEmpty(t, resp.OwnerID)

	sess, err := client.Login(ctx, authsdk.LoginRequest{Email: ownerEmail, Password: ownerPassword})
	require.NoError(t, err, "Owner login should succeed")
	require.Equal(t, "full", sess.Stage)

	return client.WithToken(sess.Token)
}

// registerInvited issues an invitation for email and registers with it.
func registerInvited(t *testing.T, owner *authsdk.Client, email, password, role string) *authsdk.SessionResponse {
	t.Helper()
	ctx := t.Context()

	inv, err := owner.CreateInvitation(ctx, authsdk.CreateInvitationRequest{Email: email, Role: role})
	require.NoError(t, err)

	sess, err := authsdk.NewClient(owner.BaseURL).Register(ctx, authsdk.RegisterRequest{
		Email:           email,
		Password:        password,
		InvitationToken: inv.Token,
	})
	require.NoError(t, err, "Invited registration should succeed")
	return sess
}

// requireCode checks that err is an API error with the given status and code.
func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Description)
	require.Equal(t, code, apiErr.Code)
}
