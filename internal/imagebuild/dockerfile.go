// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/internal/manifest"
)

// Failure markers are echoed by RUN steps so a failing step can be recognised
// in the engine output regardless of builder backend.
const (
	MarkerSystemPackages       = "berth: system package installation failed"
	MarkerDependencyResolution = "berth: dependency resolution failed"
)

// Dockerfile renders the plan. The output depends only on the plan, so equal
// plans render byte-identical files.
func (p *Plan) Dockerfile() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Generated by berth. Plan %s.\n", p.ShortKey())
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, "\n# [%d] %s\n", s.Index, s.Kind)
		for _, ins := range s.Instructions {
			sb.WriteString(ins)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func shellQuote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q for the shell: %w", s, err)
	}
	return q, nil
}

func shellJoin(words []string) (string, error) {
	quoted := make([]string, len(words))
	for i, w := range words {
		q, err := shellQuote(w)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

// checkShell parses cmd as POSIX shell so malformed generated commands fail at
// planning time instead of inside the engine.
func checkShell(cmd string) (string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(cmd), ""); err != nil {
		return "", fmt.Errorf("generated shell command is invalid: %w", err)
	}
	return cmd, nil
}

// failWith prints marker and fails. The marker is split into two adjacent
// quoted words so the echoed command line, which engines print before running
// it, never contains the marker itself.
func failWith(marker string) string {
	head, tail, _ := strings.Cut(marker, " ")
	return "{ echo '" + head + "'' " + tail + "' >&2; exit 1; }"
}

// systemPackagesCommand installs packages and removes the package-manager
// caches in the same layer.
func systemPackagesCommand(baseImage string, packages []string) (string, error) {
	pkgs, err := shellJoin(packages)
	if err != nil {
		return "", err
	}

	var install string
	if strings.Contains(baseImage, "alpine") {
		install = "apk add --no-cache " + pkgs + " && rm -rf /var/cache/apk/*"
	} else {
		install = "apt-get update && apt-get install -y --no-install-recommends " + pkgs +
			" && rm -rf /var/lib/apt/lists/*"
	}
	return checkShell("{ " + install + "; } || " + failWith(MarkerSystemPackages))
}

// copyInstruction renders COPY in JSON form so paths with spaces survive.
func copyInstruction(src, dst string) (string, error) {
	b, err := json.Marshal([]string{src, dst})
	if err != nil {
		return "", err
	}
	return "COPY " + string(b), nil
}

// installCommand resolves and installs the manifest without keeping the
// resolver's download cache in the layer.
func installCommand(m *manifest.Manifest, manifestRel string) (string, error) {
	var install string
	switch m.Format() {
	case manifest.FormatPyProject:
		if m.Len() == 0 {
			return checkShell("echo 'berth: no dependencies declared'")
		}
		reqs, err := shellJoin(m.Lines())
		if err != nil {
			return "", err
		}
		install = "pip install --no-cache-dir " + reqs
	default:
		path, err := shellQuote(manifestRel)
		if err != nil {
			return "", err
		}
		install = "pip install --no-cache-dir -r " + path
	}
	return checkShell(install + " || " + failWith(MarkerDependencyResolution))
}

// diagnosticsCommand lists the copied tree and warns, without failing, when
// the entry file is missing.
func diagnosticsCommand(workdir, entry string) (string, error) {
	dir, err := shellQuote(workdir)
	if err != nil {
		return "", err
	}
	file, err := shellQuote(entry)
	if err != nil {
		return "", err
	}
	warn, err := shellQuote(fmt.Sprintf("berth: warning: entry file %s not found in %s", entry, workdir))
	if err != nil {
		return "", err
	}
	return checkShell("ls -la " + dir + "; if [ ! -f " + file + " ]; then echo " + warn + " >&2; fi")
}

// runtimeInstructions declares the port and the launch command. A bind that
// reads $PORT needs shell expansion, so it uses shell form with exec to keep
// the launcher as PID 1 and the receiver of SIGTERM; a fixed bind uses exec
// form directly.
func runtimeInstructions(cfg launch.Config) ([]string, error) {
	out := []string{"EXPOSE " + strconv.Itoa(cfg.Expose)}

	cmd := cfg.Command()
	if cfg.Bind.Policy != launch.PolicyEnv {
		b, err := json.Marshal(cmd)
		if err != nil {
			return nil, err
		}
		return append(out, "CMD "+string(b)), nil
	}

	out = append(out, "ENV "+launch.PortEnvVar+"="+strconv.Itoa(cfg.Expose))

	bind := cfg.Bind.String()
	words := make([]string, len(cmd))
	for i, w := range cmd {
		if w == bind {
			words[i] = `"` + cfg.Bind.Host + ":${" + launch.PortEnvVar + `}"`
			continue
		}
		q, err := shellQuote(w)
		if err != nil {
			return nil, err
		}
		words[i] = q
	}
	shell, err := checkShell("exec " + strings.Join(words, " "))
	if err != nil {
		return nil, err
	}
	return append(out, "CMD "+shell), nil
}
