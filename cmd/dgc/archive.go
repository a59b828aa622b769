package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/M3kH/dgc/archive"
	"github.com/M3kH/dgc/storage"
	"github.com/M3kH/dgc/storage/grpccas"
	"github.com/M3kH/dgc/storage/localfs"
)

// archiveFlags selects the envelope stores a command talks to: any number of
// local directories plus, optionally, a remote dgcd archive.
type archiveFlags struct {
	dirs    []string
	addr    string
	timeout time.Duration
}

func (f *archiveFlags) register(cmd *cobra.Command) {
	f.bind(cmd.Flags())
}

func (f *archiveFlags) registerPersistent(cmd *cobra.Command) {
	f.bind(cmd.PersistentFlags())
}

func (f *archiveFlags) bind(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.dirs, "archive-dir", nil, "archive directory (repeatable; writes go to every store)")
	fs.StringVar(&f.addr, "archive-addr", "", "address of a dgcd envelope archive")
	fs.DurationVar(&f.timeout, "archive-timeout", 10*time.Second, "per-request timeout for --archive-addr")
}

func (f *archiveFlags) configured() bool {
	return len(f.dirs) > 0 || f.addr != ""
}

// open builds the archive. Several stores are combined so writes reach all
// of them and reads stop at the first hit.
func (f *archiveFlags) open() (*archive.Archive, func(), error) {
	if !f.configured() {
		return nil, nil, usagef("an archive is required: pass --archive-dir or --archive-addr")
	}

	var backends []storage.NamedCAS
	closeFn := func() {}
	for _, dir := range f.dirs {
		cas, err := localfs.New(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive %s: %w", dir, err)
		}
		backends = append(backends, storage.NamedCAS{Name: dir, CAS: cas})
	}
	if f.addr != "" {
		client, err := grpccas.Dial(f.addr, grpccas.DialOptions{Timeout: f.timeout})
		if err != nil {
			return nil, nil, fmt.Errorf("dial archive %s: %w", f.addr, err)
		}
		closeFn = func() { _ = client.Close() }
		backends = append(backends, storage.NamedCAS{Name: f.addr, CAS: client})
	}

	if len(backends) == 1 {
		return archive.New(backends[0].CAS), closeFn, nil
	}
	return archive.New(storage.ReplicatingCAS{Backends: backends}), closeFn, nil
}
