package runners

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/rafaelmartins/nn2-install/internal/fs"
)

type Ctx struct {
	SrcDir   string
	Make     string
	MakeArgs []string
	Jobs     int
}

type Runner interface {
	Name() string
	Detect(rc *Ctx) bool
	Build(ctx context.Context, rc *Ctx, target string) error
	Install(ctx context.Context, rc *Ctx, target string) error
}

var runners = []Runner{
	&makeRunner{},
}

func Get(rc *Ctx) (Runner, error) {
	if !fs.IsDir(rc.SrcDir) {
		return nil, eris.Errorf("project directory not found: %s", rc.SrcDir)
	}

	for _, v := range runners {
		if v.Detect(rc) {
			return v, nil
		}
	}

	return nil, eris.Errorf("no runner found for project: %s", rc.SrcDir)
}
