package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// configDef constrains CUE and JSON configuration before decoding.
const configDef = `
#Config: {
	dir?:    string
	store:   string & !=""
	version: int & >=1
	collections: [string]: {
		keyPath: string & !=""
	}
}
`

func loadCUEFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return ParseCUE(path, data)
}

// ParseCUE evaluates CUE (or JSON) source and decodes it. filename is
// used in error positions only.
func ParseCUE(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrInvalid, err)
	}
	return decodeCUE(ctx, v)
}

func loadCUEDir(dir string) (*Config, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("config: %w: no CUE instances in %s", ErrInvalid, dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("config: %w: loading %s: %v", ErrInvalid, dir, inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("config: %w: building %s: %v", ErrInvalid, dir, err)
	}
	return decodeCUE(ctx, v)
}

func decodeCUE(ctx *cue.Context, v cue.Value) (*Config, error) {
	def := ctx.CompileString(configDef).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("config: compile definition: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w: decode: %v", ErrInvalid, err)
	}
	return &cfg, nil
}
