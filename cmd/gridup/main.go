package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/spf13/cobra"

	"gridup"
	"gridup/cmd/gridup/ui"
	"gridup/internal/adapter/apt"
	dockeradapter "gridup/internal/adapter/docker"
	"gridup/internal/adapter/gridcli"
	"gridup/internal/adapter/meshcli"
	"gridup/internal/adapter/nfs"
	"gridup/internal/adapter/nvidia"
	"gridup/internal/adapter/run"
	"gridup/internal/adapter/systemctl"
	"gridup/internal/adapter/ufw"
	"gridup/internal/artifact"
	"gridup/internal/logging"
	"gridup/internal/preflight"
	"gridup/internal/provision"
	"gridup/internal/sharedfs"
	"gridup/internal/supervise"
	"gridup/internal/topology"
)

type flags struct {
	role    string
	peer    string
	install string

	meshToken string
	meshCIDR  string

	managerPort     int
	agentPort       int
	statedbPort     int
	cachePort       int
	computePortBase int
	computePorts    int

	storage         bool
	storageEndpoint string
	exportPath      string
	mountPath       string
	mountOptions    string

	skipHardware    bool
	skipSupervision bool
	skipPrefetch    bool

	dryRun  bool
	debug   bool
	noColor bool
}

func main() {
	var f flags

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "gridup",
		Short:         "Provision a compute-cluster node",
		Long:          "gridup provisions this host as a coordinator or worker node of a multi-node compute cluster.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.Configure(f.noColor)
			level := logging.LevelInfo
			if f.debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			return provisionNode(cmd, f)
		},
	}

	fl := root.Flags()
	fl.StringVar(&f.role, "role", "", "Node role: coordinator or worker (required)")
	fl.StringVar(&f.peer, "peer", "", "Coordinator address (required for workers)")
	fl.StringVar(&f.install, "install-path", gridup.DefaultInstallPath, "Installation prefix")

	fl.StringVar(&f.meshToken, "mesh-token", "", "Overlay mesh join token (empty disables the mesh)")
	fl.StringVar(&f.meshCIDR, "mesh-cidr", gridup.DefaultMeshCIDR, "Overlay mesh address space")

	fl.IntVar(&f.managerPort, "manager-port", gridup.DefaultManagerPort, "Manager API port")
	fl.IntVar(&f.agentPort, "agent-port", gridup.DefaultAgentPort, "Worker agent RPC port")
	fl.IntVar(&f.statedbPort, "statedb-port", gridup.DefaultStateDBPort, "State database port")
	fl.IntVar(&f.cachePort, "cache-port", gridup.DefaultCachePort, "Cache service port")
	fl.IntVar(&f.computePortBase, "compute-port-base", gridup.DefaultComputePortBase, "First compute-container port")
	fl.IntVar(&f.computePorts, "compute-ports", gridup.DefaultComputePorts, "Number of compute-container ports")

	fl.BoolVar(&f.storage, "storage", false, "Provision the shared network filesystem")
	fl.StringVar(&f.storageEndpoint, "storage-endpoint", "", "Existing storage endpoint host:/path (empty: coordinator exports)")
	fl.StringVar(&f.exportPath, "storage-export-path", gridup.DefaultExportPath, "Directory the coordinator exports")
	fl.StringVar(&f.mountPath, "storage-mount-path", gridup.DefaultMountPath, "Directory workers mount at")
	fl.StringVar(&f.mountOptions, "storage-mount-options", "", "Extra mount options")

	fl.BoolVar(&f.skipHardware, "skip-hardware", false, "Skip GPU driver and toolkit setup")
	fl.BoolVar(&f.skipSupervision, "skip-supervision", false, "Skip service supervision registration")
	fl.BoolVar(&f.skipPrefetch, "skip-prefetch", false, "Skip container image pre-pull")

	fl.BoolVar(&f.dryRun, "dry-run", false, "Print the phase plan without changing the host")
	fl.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fl.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	if err := root.Execute(); err != nil {
		if errors.Is(err, gridup.ErrRebootRequired) {
			fmt.Fprintln(os.Stderr, ui.WarnMsg("%v", err))
			fmt.Fprintln(os.Stderr, ui.Muted("  After the reboot, run the same command again; completed work is preserved."))
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

func buildConfig(f flags) (gridup.Config, error) {
	cfg := gridup.Config{
		InstallPath: f.install,
		MeshToken:   f.meshToken,
		Ports: gridup.Ports{
			Manager:         f.managerPort,
			Agent:           f.agentPort,
			StateDB:         f.statedbPort,
			Cache:           f.cachePort,
			ComputePortBase: f.computePortBase,
			ComputePorts:    f.computePorts,
		},
		Storage: gridup.StorageOptions{
			Enabled:      f.storage,
			Endpoint:     f.storageEndpoint,
			ExportPath:   f.exportPath,
			MountPath:    f.mountPath,
			MountOptions: f.mountOptions,
		},
		SkipHardware:    f.skipHardware,
		SkipSupervision: f.skipSupervision,
		SkipPrefetch:    f.skipPrefetch,
	}

	switch f.role {
	case string(gridup.RoleCoordinator), string(gridup.RoleWorker):
		cfg.Role = gridup.Role(f.role)
	case "":
		return cfg, fmt.Errorf("%w: --role is required (coordinator or worker)", gridup.ErrValidation)
	default:
		return cfg, fmt.Errorf("%w: unknown role %q", gridup.ErrValidation, f.role)
	}

	if f.peer != "" {
		addr, err := netip.ParseAddr(f.peer)
		if err != nil {
			return cfg, fmt.Errorf("%w: parse --peer: %v", gridup.ErrValidation, err)
		}
		cfg.PeerAddr = addr
	}

	cidr, err := netip.ParsePrefix(f.meshCIDR)
	if err != nil {
		return cfg, fmt.Errorf("%w: parse --mesh-cidr: %v", gridup.ErrValidation, err)
	}
	cfg.MeshCIDR = cidr

	return cfg, cfg.Validate()
}

func provisionNode(cmd *cobra.Command, f flags) error {
	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}

	runner := run.Local{}
	packages := apt.New(runner)
	supervisor := systemctl.New(runner)

	engine, err := dockeradapter.New(runner)
	if err != nil {
		return err
	}

	orch := &provision.Orchestrator{
		Config:       cfg,
		Preflight:    preflight.New(nvidia.New(runner)),
		Topology:     topology.New(meshcli.New(runner), ufw.New(runner)),
		Storage:      sharedfs.New(nfs.NewSharer(runner, packages, supervisor), nfs.NewMounts()),
		Packages:     packages,
		Engine:       engine,
		ControlPlane: gridcli.New(runner, cfg.InstallPath),
		Supervision:  supervise.New(supervisor),
		Artifacts:    artifact.Writer{},
	}

	if f.dryRun {
		printPlan(cmd, cfg, orch.Plan())
		return nil
	}

	if err := orch.Run(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("Node provisioned as %s.", cfg.Role))
	if cfg.Role == gridup.RoleCoordinator {
		etc := artifact.EtcDir(cfg.InstallPath)
		fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("  ",
			ui.KV("join token", etc+"/"+artifact.JoinTokenArtifact),
			ui.KV("client env", etc+"/"+artifact.EnvScriptArtifact),
		))
	}
	return nil
}

func printPlan(cmd *cobra.Command, cfg gridup.Config, steps []provision.Step) {
	fmt.Fprintln(cmd.OutOrStdout(), ui.InfoMsg("Dry run: phase plan for role %s", ui.Bold(string(cfg.Role))))

	rows := make([][]string, 0, len(steps))
	for i, s := range steps {
		status := "run"
		note := ""
		if s.Skip {
			status = "skip"
			note = s.SkipReason
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), s.Phase.String(), status, note})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"#", "Phase", "Action", "Note"}, rows))
}
