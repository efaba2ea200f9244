package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"
	"mvdan.cc/sh/v3/shell"
)

const (
	FileName = ".nn2-install.yml"

	DefaultProjectDir    = "../csi-nn2"
	DefaultBuildTarget   = "nn2_ref_x86"
	DefaultInstallTarget = "install_nn2"
	DefaultInstallDir    = "install_nn2"
	DefaultMake          = "make"
)

// JobsAuto asks for one make job per logical core, plus one.
const JobsAuto = -1

type Config struct {
	ProjectDir    string `yaml:"project_dir"`
	BuildTarget   string `yaml:"build_target"`
	InstallTarget string `yaml:"install_target"`
	InstallDir    string `yaml:"install_dir"`
	Make          string `yaml:"make"`
	MakeArgs      string `yaml:"make_args"`
	Jobs          int    `yaml:"jobs"`
}

func Default() *Config {
	return &Config{
		ProjectDir:    DefaultProjectDir,
		BuildTarget:   DefaultBuildTarget,
		InstallTarget: DefaultInstallTarget,
		InstallDir:    DefaultInstallDir,
		Make:          DefaultMake,
	}
}

// Read loads filename on top of the defaults. A missing file yields the
// defaults unchanged.
func Read(filename string) (*Config, error) {
	conf := Default()

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// must work fine without config
			return conf, nil
		}
		return nil, eris.Wrapf(err, "failed to open config %s", filename)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(conf); err != nil {
		return nil, eris.Wrapf(err, "failed to parse config %s", filename)
	}

	return conf, nil
}

func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		return eris.New("project_dir must not be empty")
	}
	if c.BuildTarget == "" {
		return eris.New("build_target must not be empty")
	}
	if c.InstallTarget == "" {
		return eris.New("install_target must not be empty")
	}
	if c.Make == "" {
		return eris.New("make must not be empty")
	}

	// the copy must land directly below the work directory
	if c.InstallDir == "" || c.InstallDir == "." || c.InstallDir == ".." ||
		strings.ContainsAny(c.InstallDir, `/\`) || filepath.Base(c.InstallDir) != c.InstallDir {
		return eris.Errorf("install_dir must be a single directory name: %q", c.InstallDir)
	}

	if c.Jobs < JobsAuto {
		return eris.Errorf("jobs must be -1 (auto), 0 (make default) or positive: %d", c.Jobs)
	}

	if _, err := c.SplitMakeArgs(); err != nil {
		return err
	}

	return nil
}

// SplitMakeArgs splits MakeArgs the way a POSIX shell would, expanding
// environment variable references.
func (c *Config) SplitMakeArgs() ([]string, error) {
	if strings.TrimSpace(c.MakeArgs) == "" {
		return nil, nil
	}
	args, err := shell.Fields(c.MakeArgs, os.Getenv)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid make_args: %s", c.MakeArgs)
	}
	return args, nil
}

// ResolveProjectDir returns the project directory as an absolute path,
// relative paths being taken from workDir.
func (c *Config) ResolveProjectDir(workDir string) string {
	if filepath.IsAbs(c.ProjectDir) {
		return filepath.Clean(c.ProjectDir)
	}
	return filepath.Join(workDir, c.ProjectDir)
}
