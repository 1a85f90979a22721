package artifact

// Typed models for every generated configuration artifact. Values are
// placed by field, never by text substitution, so a port number can never
// corrupt an unrelated value that happens to share digits.

// managerConfig is the coordinator control-plane service configuration.
type managerConfig struct {
	Service managerService `yaml:"service"`
	StateDB backendAuth    `yaml:"statedb"`
	Cache   backendAuth    `yaml:"cache"`
	Cluster clusterAuth    `yaml:"cluster"`
	API     apiKeypair     `yaml:"api"`
	GPU     gpuConfig      `yaml:"gpu"`
	Paths   pathConfig     `yaml:"paths"`
}

type managerService struct {
	// BindAddr is 0.0.0.0 when workers must reach the manager directly,
	// 127.0.0.1 when the mesh fronts it.
	BindAddr      string `yaml:"bind-addr"`
	Port          int    `yaml:"port"`
	AdvertiseAddr string `yaml:"advertise-addr"`
}

type backendAuth struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

type clusterAuth struct {
	AuthToken string `yaml:"auth-token"`
}

type apiKeypair struct {
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
}

type gpuConfig struct {
	// Toolkit is the resolved GPU toolkit channel; empty disables the GPU
	// plugin entirely.
	Toolkit  string `yaml:"toolkit,omitempty"`
	Enabled  bool   `yaml:"enabled"`
	Degraded bool   `yaml:"degraded,omitempty"`
}

type pathConfig struct {
	Install string `yaml:"install"`
	Shared  string `yaml:"shared,omitempty"`
}

// agentConfig is the worker compute-agent configuration. Coordinator holds
// where this agent dials out to; Agent holds what it advertises about
// itself. The two sides of that relationship must never share a field.
type agentConfig struct {
	Coordinator coordinatorEndpoints `yaml:"coordinator"`
	Agent       agentService         `yaml:"agent"`
	Cluster     clusterAuth          `yaml:"cluster"`
	GPU         gpuConfig            `yaml:"gpu"`
	Paths       pathConfig           `yaml:"paths"`
}

// coordinatorEndpoints names the coordinator-side endpoints the agent
// connects to.
type coordinatorEndpoints struct {
	ManagerAddr string `yaml:"manager-addr"`
	ManagerPort int    `yaml:"manager-port"`
}

// agentService is what the agent advertises about itself to the cluster.
type agentService struct {
	AdvertiseAddr   string `yaml:"advertise-addr"`
	Port            int    `yaml:"port"`
	ComputePortBase int    `yaml:"compute-port-base"`
	ComputePorts    int    `yaml:"compute-ports"`
}
