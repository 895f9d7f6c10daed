package backend

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/byteness/zerotrust-mesh/internal/sandbox"
)

// MicroVM is a process-based Backend standing in for a Firecracker-class
// micro-VM launcher: it shells out to a configured launcher binary keyed
// by opaque sandbox id. Grounded on mdm.Provider's narrow lookup-by-id
// shape (one of several providers tried in order by a MultiProvider),
// generalized from an HTTP MDM query to a local subprocess launcher.
type MicroVM struct {
	launcherPath string
}

// NewMicroVM builds a MicroVM back-end that shells out to launcherPath.
func NewMicroVM(launcherPath string) *MicroVM {
	return &MicroVM{launcherPath: launcherPath}
}

func (m *MicroVM) Tag() string { return "microvm" }

// Detect checks that the launcher binary reports itself ready via a
// "status" subcommand.
func (m *MicroVM) Detect(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, m.launcherPath, "status")
	return cmd.Run() == nil
}

// Create launches a micro-VM sandbox with the given name and caps.
func (m *MicroVM) Create(ctx context.Context, name string, caps sandbox.Caps) error {
	cmd := exec.CommandContext(ctx, m.launcherPath, "create",
		"--id", name,
		"--cpu-shares", strconv.Itoa(caps.CPUShares),
		"--memory-mib", strconv.Itoa(caps.MemoryMiB),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("microvm create %s: %w: %s", name, err, out)
	}
	return nil
}

// Destroy tears down a micro-VM by id. Idempotent: the launcher is
// expected to exit 0 for an unknown id.
func (m *MicroVM) Destroy(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, m.launcherPath, "destroy", "--id", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("microvm destroy %s: %w: %s", name, err, out)
	}
	return nil
}
