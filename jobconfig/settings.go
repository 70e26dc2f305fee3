package jobconfig

// RunnerConfig describes how a stage is scheduled. Only queue parameters are
// safe to change once a job has started.
type RunnerConfig struct {
	Command  []string          `yaml:"command" json:"command"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Queue    string            `yaml:"queue,omitempty" json:"queue,omitempty" reconcile:"safe"`
	Walltime string            `yaml:"walltime,omitempty" json:"walltime,omitempty" reconcile:"safe"`
	NP       int               `yaml:"np,omitempty" json:"np,omitempty" reconcile:"safe"`
	NN       int               `yaml:"nn,omitempty" json:"nn,omitempty" reconcile:"safe"`
	JobName  string            `yaml:"jobname,omitempty" json:"jobname,omitempty" reconcile:"safe"`
	Prefix   string            `yaml:"prefix,omitempty" json:"prefix,omitempty" reconcile:"safe"`
	Postfix  string            `yaml:"postfix,omitempty" json:"postfix,omitempty" reconcile:"safe"`
	QueueID  string            `yaml:"queueid,omitempty" json:"queueid,omitempty" reconcile:"skip"`
}

// PySCFConfig holds mean-field settings. Only the SCF iteration ceiling may
// change after the fact.
type PySCFConfig struct {
	Method       string  `yaml:"method,omitempty" json:"method,omitempty"`
	Basis        string  `yaml:"basis,omitempty" json:"basis,omitempty"`
	XC           string  `yaml:"xc,omitempty" json:"xc,omitempty"`
	ECP          string  `yaml:"ecp,omitempty" json:"ecp,omitempty"`
	Charge       int     `yaml:"charge,omitempty" json:"charge,omitempty"`
	Spin         int     `yaml:"spin,omitempty" json:"spin,omitempty"`
	ConvTol      float64 `yaml:"conv_tol,omitempty" json:"conv_tol,omitempty"`
	DirectNewton bool    `yaml:"direct_newton,omitempty" json:"direct_newton,omitempty"`
	MaxCycle     int     `yaml:"max_cycle,omitempty" json:"max_cycle,omitempty" reconcile:"safe"`
	ChkFile      string  `yaml:"chkfile,omitempty" json:"chkfile,omitempty" reconcile:"skip"`
	DMGenerator  string  `yaml:"dm_generator,omitempty" json:"dm_generator,omitempty" reconcile:"skip"`
}

// QWalkConfig holds QMC settings. Generated file lists are derived, not authored.
type QWalkConfig struct {
	QMCType     string    `yaml:"qmc_type,omitempty" json:"qmc_type,omitempty"`
	Timesteps   []float64 `yaml:"timesteps,omitempty" json:"timesteps,omitempty"`
	NBlock      int       `yaml:"nblock,omitempty" json:"nblock,omitempty"`
	NStep       int       `yaml:"nstep,omitempty" json:"nstep,omitempty"`
	Jastrow     string    `yaml:"jastrow,omitempty" json:"jastrow,omitempty"`
	Orbitals    string    `yaml:"orbitals,omitempty" json:"orbitals,omitempty"`
	SysFiles    []string  `yaml:"sysfiles,omitempty" json:"sysfiles,omitempty" reconcile:"skip"`
	SlaterFiles []string  `yaml:"slaterfiles,omitempty" json:"slaterfiles,omitempty" reconcile:"skip"`
	JastFiles   []string  `yaml:"jastfiles,omitempty" json:"jastfiles,omitempty" reconcile:"skip"`
	BaseNames   []string  `yaml:"basenames,omitempty" json:"basenames,omitempty" reconcile:"skip"`
	WFFiles     []string  `yaml:"wffiles,omitempty" json:"wffiles,omitempty" reconcile:"skip"`
	TraceFiles  []string  `yaml:"tracefiles,omitempty" json:"tracefiles,omitempty" reconcile:"skip"`
}

// CrystalConfig holds periodic DFT settings for the primary stage.
type CrystalConfig struct {
	XMLName       string    `yaml:"xml_name,omitempty" json:"xml_name,omitempty"`
	KMesh         []int     `yaml:"kmesh,omitempty" json:"kmesh,omitempty"`
	DFTGrid       string    `yaml:"dftgrid,omitempty" json:"dftgrid,omitempty"`
	Functional    string    `yaml:"functional,omitempty" json:"functional,omitempty"`
	BasisParams   []float64 `yaml:"basis_params,omitempty" json:"basis_params,omitempty"`
	TolInteg      []int     `yaml:"tolinteg,omitempty" json:"tolinteg,omitempty"`
	SpinPolarized bool      `yaml:"spin_polarized,omitempty" json:"spin_polarized,omitempty"`
	MaxCycle      int       `yaml:"maxcycle,omitempty" json:"maxcycle,omitempty"`
}

// PropertiesConfig holds the dependent properties-stage settings.
type PropertiesConfig struct {
	KMesh  []int `yaml:"kmesh,omitempty" json:"kmesh,omitempty"`
	GBasis bool  `yaml:"gbasis,omitempty" json:"gbasis,omitempty"`
}

// WriterConfig drives the template writer. Code specific settings are nested
// so their own safe keys survive reconciliation.
type WriterConfig struct {
	Template        string            `yaml:"template,omitempty" json:"template,omitempty"`
	TemplateFile    string            `yaml:"template_file,omitempty" json:"template_file,omitempty"`
	RestartTemplate string            `yaml:"restart_template,omitempty" json:"restart_template,omitempty" reconcile:"safe"`
	Inputs          []string          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs         []string          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Extras          []string          `yaml:"extras,omitempty" json:"extras,omitempty"`
	CaptureStdout   bool              `yaml:"capture_stdout,omitempty" json:"capture_stdout,omitempty" reconcile:"safe"`
	Vars            map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	PySCF           PySCFConfig       `yaml:"pyscf,omitempty" json:"pyscf,omitempty" reconcile:"nested"`
	QWalk           QWalkConfig       `yaml:"qwalk,omitempty" json:"qwalk,omitempty" reconcile:"nested"`
	Crystal         CrystalConfig     `yaml:"crystal,omitempty" json:"crystal,omitempty" reconcile:"nested"`
	Properties      PropertiesConfig  `yaml:"properties,omitempty" json:"properties,omitempty" reconcile:"nested"`
	Completed       bool              `yaml:"completed,omitempty" json:"completed,omitempty" reconcile:"skip"`
}

// ReaderConfig tells the marker reader how to recognise finished and
// restartable output.
type ReaderConfig struct {
	DoneMarker     string `yaml:"done_marker,omitempty" json:"done_marker,omitempty"`
	RestartPattern string `yaml:"restart_pattern,omitempty" json:"restart_pattern,omitempty"`
	SummaryLines   int    `yaml:"summary_lines,omitempty" json:"summary_lines,omitempty" reconcile:"safe"`
}
