// Command secobjctl is an operator CLI for manual testing against a
// directory of secobjfs containers: create, cat, stat, and rm
// subcommands over internal/reetransport's local-filesystem transport.
// It stands in for the TEE caller the engine is designed for.
package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/teefs/secobjfs"
	"github.com/teefs/secobjfs/internal/config"
	"github.com/teefs/secobjfs/internal/cryptocore"
	"github.com/teefs/secobjfs/internal/exitcodes"
	"github.com/teefs/secobjfs/internal/keymanager"
	"github.com/teefs/secobjfs/internal/kdf"
	"github.com/teefs/secobjfs/internal/processhardening"
	"github.com/teefs/secobjfs/internal/reetransport"
	"github.com/teefs/secobjfs/internal/session"
)

const defaultNumBlocksPerFile = 1 << 16 // 16 MiB objects at BLOCK_SIZE=256

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	processhardening.New().HardenProcess()

	if len(args) == 0 {
		usage(errOut)
		return exitcodes.Usage
	}

	flagSet := flag.NewFlagSet("secobjctl", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	dir := flagSet.String("dir", ".", "container directory")
	configPath := flagSet.String("config", "", "path to a secobjfs.conf.json (JSONC) file")
	passphrase := flagSet.String("passphrase", "", "session wrap-key passphrase")
	ctlsock := flagSet.String("ctlsock", "", "path to start a read-only control socket at before running the subcommand")

	if err := flagSet.Parse(args); err != nil {
		return exitcodes.Usage
	}
	positional := flagSet.Args()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(errOut, "secobjctl:", err)
			return exitcodes.KDFParams
		}
		cfg = loaded
	}
	if *ctlsock != "" {
		cfg.CtlSockPath = *ctlsock
	}

	eng, closeEng, err := buildEngine(*dir, cfg, *passphrase)
	if err != nil {
		fmt.Fprintln(errOut, "secobjctl:", err)
		return exitcodes.Backend
	}
	defer closeEng()

	if cfg.CtlSockPath != "" {
		listener, err := eng.ServeCtlSock(cfg.CtlSockPath)
		if err != nil {
			fmt.Fprintln(errOut, "secobjctl:", err)
			return exitcodes.Backend
		}
		defer listener.Close()
	}

	if len(positional) < 2 {
		usage(errOut)
		return exitcodes.Usage
	}
	sub := positional[0]
	// Object paths are resolved against --dir since the local-filesystem
	// transport opens whatever path it is given literally, with no
	// directory of its own.
	name := filepath.Join(*dir, positional[1])

	switch sub {
	case "create":
		return doCreate(eng, name, errOut)
	case "cat":
		return doCat(eng, name, out, errOut)
	case "stat":
		return doStat(eng, name, out, errOut)
	case "rm":
		return doRemove(eng, name, errOut)
	default:
		usage(errOut)
		return exitcodes.Usage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: secobjctl [--dir=PATH] [--config=FILE] [--passphrase=PASS] <create|cat|stat|rm> NAME")
}

func buildEngine(dir string, cfg config.Config, passphrase string) (*secobjfs.Engine, func(), error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create container directory: %w", err)
	}

	a, err := kdf.NewArgon2idKDF()
	if err != nil {
		return nil, nil, fmt.Errorf("build KDF: %w", err)
	}
	a.Memory = cfg.Argon2id.Memory
	a.Iterations = cfg.Argon2id.Iterations
	a.Parallelism = cfg.Argon2id.Parallelism
	wrapKey, err := a.DeriveKey([]byte(passphrase))
	if err != nil {
		return nil, nil, fmt.Errorf("derive wrap key: %w", err)
	}

	km, err := keymanager.New(wrapKey, cryptocore.PreferredBackend())
	if err != nil {
		return nil, nil, fmt.Errorf("build key manager: %w", err)
	}

	tr := reetransport.NewLocalFS()
	uuid, err := randomUUID()
	if err != nil {
		km.Close()
		return nil, nil, err
	}
	sess := session.NewStatic(uuid)

	engCfg := secobjfs.Config{NumBlocksPerFile: defaultNumBlocksPerFile}
	eng := secobjfs.New(km, tr, sess, engCfg, cfg.StorageType())
	return eng, km.Close, nil
}

func randomUUID() ([16]byte, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return uuid, fmt.Errorf("generate session identity: %w", err)
	}
	return uuid, nil
}

func doCreate(eng *secobjfs.Engine, name string, errOut io.Writer) int {
	h, err := eng.Create(name)
	if err != nil {
		fmt.Fprintln(errOut, "secobjctl: create:", err)
		return exitcodes.Backend
	}
	h.Close()
	return 0
}

func doCat(eng *secobjfs.Engine, name string, out, errOut io.Writer) int {
	h, err := eng.Open(name)
	if err != nil {
		fmt.Fprintln(errOut, "secobjctl: open:", err)
		return exitcodes.Backend
	}
	defer h.Close()

	buf := make([]byte, 64*1024)
	for {
		n, err := h.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if n == 0 || err != nil {
			break
		}
	}
	return 0
}

func doStat(eng *secobjfs.Engine, name string, out, errOut io.Writer) int {
	status, err := eng.StatObject(name)
	if err != nil {
		fmt.Fprintln(errOut, "secobjctl: stat:", err)
		return exitcodes.Backend
	}
	fmt.Fprintln(out, status)
	return 0
}

func doRemove(eng *secobjfs.Engine, name string, errOut io.Writer) int {
	if err := eng.Remove(name); err != nil {
		fmt.Fprintln(errOut, "secobjctl: rm:", err)
		return exitcodes.Backend
	}
	return 0
}
