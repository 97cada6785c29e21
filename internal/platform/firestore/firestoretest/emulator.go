// Package firestoretest points integration tests at a Firestore emulator.
//
// An emulator already running at FIRESTORE_EMULATOR_HOST is reused and its documents are wiped
// for the project after each test. Otherwise one is started in docker for the test.
package firestoretest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vnshop/api/internal/platform/config"
)

const (
	emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	bootTimeout   = 45 * time.Second
)

// Start returns a config for projectID on a ready emulator. Tests are skipped when neither a
// running emulator nor docker is available.
func Start(t testing.TB, projectID string) config.FirestoreConfig {
	t.Helper()
	cfg := config.FirestoreConfig{ProjectID: projectID}

	if host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")); host != "" {
		if err := ready(host, 2*time.Second); err != nil {
			t.Skipf("FIRESTORE_EMULATOR_HOST=%s is not answering: %v", host, err)
		}
		t.Cleanup(func() { wipe(host, projectID) })
		cfg.EmulatorHost = host
		return cfg
	}

	cfg.EmulatorHost = runContainer(t)
	return cfg
}

func runContainer(t testing.TB) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}

	port, err := freePort()
	if err != nil {
		t.Fatalf("allocate emulator port: %v", err)
	}
	name := "fs-emulator-" + strings.ToLower(ulid.Make().String())
	out, err := exec.Command("docker", "run", "--detach", "--rm", "--name", name,
		"--publish", fmt.Sprintf("127.0.0.1:%d:8080", port),
		emulatorImage,
		"gcloud", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("docker run %s: %v: %s", emulatorImage, err, strings.TrimSpace(string(out)))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = exec.CommandContext(ctx, "docker", "rm", "--force", name).Run()
	})

	host := fmt.Sprintf("127.0.0.1:%d", port)
	if err := ready(host, bootTimeout); err != nil {
		logs, _ := exec.Command("docker", "logs", "--tail", "20", name).CombinedOutput()
		t.Fatalf("emulator %s not ready: %v\n%s", name, err, logs)
	}
	return host
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// ready polls the emulator root, which answers "Ok" once it accepts requests.
func ready(host string, within time.Duration) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(within)
	var last error
	for {
		resp, err := client.Get("http://" + host + "/")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("status %d", resp.StatusCode)
		}
		last = err
		if time.Now().After(deadline) {
			return last
		}
		time.Sleep(300 * time.Millisecond)
	}
}

// wipe deletes every document of projectID through the emulator's admin endpoint.
func wipe(host, projectID string) {
	url := fmt.Sprintf("http://%s/emulator/v1/projects/%s/databases/(default)/documents", host, projectID)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err == nil {
		resp.Body.Close()
	}
}
