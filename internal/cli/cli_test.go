//go:build unix

/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/bmuddha/shmemq"
	"github.com/bmuddha/shmemq/internal/segment"
)

var seq atomic.Uint64

func queueName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("/shmemq-cli-%d-%d", os.Getpid(), seq.Add(1))
	t.Cleanup(func() { segment.Remove(name) })
	return name
}

// executeCommand runs a fresh command tree with args and returns captured
// output.
func executeCommand(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(append(args, "--log-level", "ERROR"))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	if root.Use != "shmemq" {
		t.Errorf("Use = %q, want shmemq", root.Use)
	}
	want := map[string]bool{"produce": false, "consume": false, "bench": false, "inspect": false, "unlink": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s missing", name)
		}
	}
}

func TestBenchValues(t *testing.T) {
	out, err := executeCommand(t, nil, "bench", "--name", queueName(t), "--capacity", "64", "--sync", "spin", "--count", "2000")
	if err != nil {
		t.Fatalf("bench: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2000 records, 16000 bytes") {
		t.Errorf("output = %q", out)
	}
}

func TestBenchSlices(t *testing.T) {
	out, err := executeCommand(t, nil, "bench", "--name", queueName(t), "--slice", "--capacity", "256",
		"--record-size", "24", "--count", "1000")
	if err != nil {
		t.Fatalf("bench --slice: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1000 records, 24000 bytes") {
		t.Errorf("output = %q", out)
	}
}

func TestProduceThenConsumeLines(t *testing.T) {
	name := queueName(t)
	// Keeps the object alive between the two commands.
	hold, err := shmemq.NewSliceConsumer(shmemq.Settings{Name: name, Capacity: 256, Sync: shmemq.SyncSpin})
	if err != nil {
		t.Fatalf("NewSliceConsumer() = %v", err)
	}
	defer hold.Close()

	common := []string{"--name", name, "--slice", "--capacity", "256", "--sync", "spin"}
	out, err := executeCommand(t, strings.NewReader("alpha\n\nbeta gamma\n"), append([]string{"produce"}, common...)...)
	if err != nil {
		t.Fatalf("produce: %v\n%s", err, out)
	}
	if got := hold.Len(); got != 12+4+16 {
		t.Fatalf("occupancy after produce = %d, want 32", got)
	}

	out, err = executeCommand(t, nil, append([]string{"consume", "--count", "3"}, common...)...)
	if err != nil {
		t.Fatalf("consume: %v\n%s", err, out)
	}
	if out != "alpha\n\nbeta gamma\n" {
		t.Errorf("consume output = %q", out)
	}
}

func TestProduceThenConsumeSequence(t *testing.T) {
	name := queueName(t)
	hold, err := shmemq.NewConsumer[uint64](shmemq.Settings{Name: name, Capacity: 16, Sync: shmemq.SyncSpin})
	if err != nil {
		t.Fatalf("NewConsumer() = %v", err)
	}
	defer hold.Close()

	common := []string{"--name", name, "--capacity", "16", "--sync", "spin"}
	if out, err := executeCommand(t, nil, append([]string{"produce", "--count", "5"}, common...)...); err != nil {
		t.Fatalf("produce: %v\n%s", err, out)
	}
	out, err := executeCommand(t, nil, append([]string{"consume", "--count", "5"}, common...)...)
	if err != nil {
		t.Fatalf("consume: %v\n%s", err, out)
	}
	if out != "0\n1\n2\n3\n4\n" {
		t.Errorf("consume output = %q", out)
	}
}

func TestInspect(t *testing.T) {
	name := queueName(t)
	p, err := shmemq.NewProducer[uint64](shmemq.Settings{Name: name, Capacity: 8, Sync: shmemq.SyncSpin})
	if err != nil {
		t.Fatalf("NewProducer() = %v", err)
	}
	defer p.Close()
	p.Produce(1)
	p.Produce(2)

	out, err := executeCommand(t, nil, "inspect", "--name", name, "--json")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	var r inspectReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("inspect output %q: %v", out, err)
	}
	if r.Name != name || r.Occupancy != 2 || r.Size != 8+8*8 || r.SyncState != "idle" {
		t.Errorf("report = %+v", r)
	}

	if _, err := executeCommand(t, nil, "inspect", "--name", name+"-absent"); err == nil {
		t.Error("inspect of a missing queue succeeded")
	}
}

func TestUnlink(t *testing.T) {
	name := queueName(t)
	p, err := shmemq.NewProducer[uint64](shmemq.Settings{Name: name, Capacity: 8, Sync: shmemq.SyncSpin})
	if err != nil {
		t.Fatalf("NewProducer() = %v", err)
	}
	defer p.Close()

	out, err := executeCommand(t, nil, "unlink", "--name", name)
	if err != nil || !strings.Contains(out, "removed") {
		t.Fatalf("unlink = %q, %v", out, err)
	}
	if segment.Exists(name) {
		t.Fatal("object still present after unlink")
	}
	out, err = executeCommand(t, nil, "unlink", "--name", name)
	if err != nil || !strings.Contains(out, "not present") {
		t.Fatalf("second unlink = %q, %v", out, err)
	}
}

func TestInvalidFlags(t *testing.T) {
	if _, err := executeCommand(t, nil, "bench", "--name", queueName(t), "--sync", "condvar"); err == nil {
		t.Error("bench --sync condvar succeeded")
	}
	if _, err := executeCommand(t, nil, "bench", "--name", "no-slash"); err == nil {
		t.Error("bench with an invalid name succeeded")
	}
}

// A mismatch ends the bench while its producer goroutine is parked on a
// full queue; the run must stop that goroutine before the endpoints close.
func TestBenchValuesMismatchStopsProducer(t *testing.T) {
	s := shmemq.Settings{Name: queueName(t), Capacity: 4}
	hold, err := shmemq.NewProducer[uint64](s)
	if err != nil {
		t.Fatalf("NewProducer() = %v", err)
	}
	defer hold.Close()
	// A full queue keeps the bench producer parked until the consumer has
	// read the first value.
	for range s.Capacity {
		if err := hold.Produce(99); err != nil {
			t.Fatalf("Produce() = %v", err)
		}
	}

	_, err = benchValues(s, 1000)
	if err == nil || !strings.Contains(err.Error(), "read 99, want 0") {
		t.Fatalf("benchValues() = %v, want a mismatch on the first value", err)
	}
	if hold.Len() > hold.Capacity() {
		t.Fatalf("Len() = %d after stop", hold.Len())
	}
}

// consume parks on the configured primitive and returns cleanly when the
// command's context is cancelled.
func TestConsumeInterrupted(t *testing.T) {
	name := queueName(t)
	hold, err := shmemq.NewProducer[uint64](shmemq.Settings{Name: name, Capacity: 8})
	if err != nil {
		t.Fatalf("NewProducer() = %v", err)
	}
	defer hold.Close()

	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"consume", "--name", name, "--capacity", "8", "--log-level", "ERROR"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !hold.PeerParked() {
		if time.Now().After(deadline) {
			t.Fatal("consume never parked")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume = %v\n%s", err, buf.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not stop after cancel")
	}
}
