/*
Package tmtest provides helpers for testing against a tendermint node.

Tests using it are skipped when the tendermint binary is not installed.
*/
package tmtest

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/iov-one/offchain/chaintest/assert"
	"github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
)

// TestReporter is the minimal subset of testing.TB needed to run these test helpers
type TestReporter interface {
	assert.Tester
	Skipf(string, ...interface{})
	Logf(string, ...interface{})
}

// lookPath returns the path of the tendermint binary or skips the test.
//
// Set FORCE_TM_TEST=1 environment variable to fail the test if the binary is
// not available. This might be desired when running tests by CI.
func lookPath(t TestReporter) string {
	t.Helper()
	tmpath, err := exec.LookPath("tendermint")
	if err != nil {
		if os.Getenv("FORCE_TM_TEST") != "1" {
			t.Skipf("Tendermint binary not found. Set FORCE_TM_TEST=1 to fail this test.")
		} else {
			t.Fatalf("Tendermint binary not found. Do not set FORCE_TM_TEST=1 to skip this test.")
		}
	}
	return tmpath
}

// InitHome creates a temporary tendermint home directory holding a single
// validator configuration. Call cleanup to remove it.
func InitHome(t TestReporter) (home string, cleanup func()) {
	t.Helper()
	tmpath := lookPath(t)
	home, err := ioutil.TempDir("", "tmtest")
	assert.Nil(t, err)
	cleanup = func() { os.RemoveAll(home) }

	out, err := exec.Command(tmpath, "init", "--home", home).CombinedOutput()
	if err != nil {
		cleanup()
		t.Fatalf("Cannot init tendermint home: %s\n%s", err, out)
	}
	return home, cleanup
}

// RunTendermint starts a tendermit process. Returned cleanup function will
// ensure the process has stopped and will block until.
//
// Set TM_DEBUG=1 environmental variable to output all tm logs
func RunTendermint(ctx context.Context, t TestReporter, home string) (cleanup func()) {
	t.Helper()
	tmpath := lookPath(t)

	cmd := exec.CommandContext(ctx, tmpath, "node", "--home", home)
	// log tendermint output for verbose debugging....
	if os.Getenv("TM_DEBUG") != "" {
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Tendermint process failed: %s", err)
	}

	// Give tendermint time to setup.
	time.Sleep(2 * time.Second)
	t.Logf("Running %s pid=%d", tmpath, cmd.Process.Pid)

	// Return a cleanup function, that will wait for the tendermint to stop.
	// We also auto-kill when the context is Done
	done := make(chan struct{})

	var once sync.Once
	cleanup = func() {
		once.Do(func() {
			t.Logf("tendermint cleanup called")
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			close(done)
		})

		// Block until the tendermint server process is gone.
		<-done
	}

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()

	return cleanup
}

// ServeApp serves the application on the ABCI socket tendermint connects to,
// for example "tcp://127.0.0.1:26658".
func ServeApp(t TestReporter, app abci.Application, addr string) (cleanup func()) {
	t.Helper()
	svr, err := server.NewServer(addr, "socket", app)
	if err != nil {
		t.Fatalf("Cannot create ABCI server: %s", err)
	}
	if err := svr.Start(); err != nil {
		t.Fatalf("Cannot start ABCI server: %s", err)
	}
	return func() {
		_ = svr.Stop()
	}
}
