package parallelsync

import (
	"testing"

	"github.com/pgsync-io/pgsync/internal/config"
)

func TestConfigWorkersSynchronousIsAlwaysOne(t *testing.T) {
	c := Config{Mode: ModeSynchronous, Nprocs: 8}
	if got := c.workers(); got != 1 {
		t.Fatalf("workers() = %d, want 1", got)
	}
}

func TestConfigWorkersThreadedUsesNprocs(t *testing.T) {
	c := Config{Mode: ModeThreaded, Nprocs: 4}
	if got := c.workers(); got != 4 {
		t.Fatalf("workers() = %d, want 4", got)
	}
}

func TestConfigWorkersThreadedDefaultsToOneWhenUnset(t *testing.T) {
	c := Config{Mode: ModeThreaded}
	if got := c.workers(); got != 1 {
		t.Fatalf("workers() = %d, want 1", got)
	}
}

func TestConfigBlockSizeDefaultsTo20480(t *testing.T) {
	c := Config{}
	if got := c.blockSize(); got != 20480 {
		t.Fatalf("blockSize() = %d, want 20480", got)
	}
}

func TestConfigBlockSizeHonorsOverride(t *testing.T) {
	c := Config{BlockSize: 500}
	if got := c.blockSize(); got != 500 {
		t.Fatalf("blockSize() = %d, want 500", got)
	}
}

func TestCheckpointNameDistinguishesWorkers(t *testing.T) {
	r := &Runner{Sync: config.Sync{Database: "books", Index: "books"}}
	a := r.checkpointName(0)
	b := r.checkpointName(1)
	if a == b {
		t.Fatalf("checkpointName(0) == checkpointName(1) == %q, want distinct names", a)
	}
}
