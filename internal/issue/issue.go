// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	RecipeNotFoundId Id = iota + 1
	RecipeParseErrorId
	ManifestParseErrorId
	ContainerEngineNotFoundId
	DependencyResolutionFailedId
	ImageBuildFailedId
	EntryPointMissingId
	PortMismatchId
	BindFailedId
	AppLoadFailedId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	recipeNotFoundIssue = &Issue{
		id: RecipeNotFoundId,
		mdMsg: `
# No berth.cue found

The build directory has no recipe file. Defaults are only applied when a
recipe exists, so the pipeline cannot tell which base image to pin.

## Things you can try
- Create one with the defaults:
~~~
$ berth init
~~~
- Or point at another project:
~~~
$ berth build ./path/to/project
~~~`,
	}

	recipeParseErrorIssue = &Issue{
		id: RecipeParseErrorId,
		mdMsg: `
# Failed to parse berth.cue

The recipe did not satisfy the schema. The error names the offending field.

## Common causes
- ` + "`base_image`" + ` without a pinned tag (` + "`python:latest`" + ` is rejected)
- an empty entry in ` + "`system_packages`" + `
- ` + "`expose`" + ` outside 1-65535`,
	}

	manifestParseErrorIssue = &Issue{
		id: ManifestParseErrorId,
		mdMsg: `
# Failed to read the dependency manifest

Each line must hold one requirement, e.g. ` + "`numpy>=1.26,<2`" + `.
Blank lines and ` + "`#`" + ` comments are ignored. Pip options such as
` + "`-r other.txt`" + ` are not supported.`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available

Neither podman nor docker answered. Install one of them and make sure the
daemon (docker) or socket (podman) is reachable by the current user.

~~~
$ docker version
$ podman version
~~~`,
	}

	dependencyResolutionFailedIssue = &Issue{
		id: DependencyResolutionFailedId,
		mdMsg: `
# Dependency resolution failed

The package resolver could not install the manifest. Its output is printed
above unchanged. No image was tagged.

## Things you can try
- Relax the conflicting version constraints.
- A numeric package without a prebuilt wheel for the pinned runtime needs a
  compiler; add ` + "`build-essential`" + ` (or ` + "`gcc`" + `, ` + "`g++`" + `) to ` + "`system_packages`" + `.`,
	}

	imageBuildFailedIssue = &Issue{
		id: ImageBuildFailedId,
		mdMsg: `
# Image build failed

A build step exited non-zero. The failing step and the tool output are shown
above. The staging tag was removed and no final tag was produced.`,
	}

	entryPointMissingIssue = &Issue{
		id: EntryPointMissingId,
		mdMsg: `
# Application entry file not found

The source tree does not contain the configured entry file. The build
continues, but the launcher will exit before binding a port when the
application cannot be loaded.`,
	}

	portMismatchIssue = &Issue{
		id: PortMismatchId,
		mdMsg: `
# Bind port does not match the exposed port

The launcher would listen on a different port than the image declares.
Orchestrators route traffic to the exposed port, so requests would never
arrive.

## Things you can try
- Bind with ` + "`--bind 0.0.0.0:$PORT`" + ` and let the platform inject ` + "`PORT`" + `.
- Or keep a fixed bind and set ` + "`expose`" + ` to the same port.`,
	}

	bindFailedIssue = &Issue{
		id: BindFailedId,
		mdMsg: `
# Failed to bind the listening socket

Another process may hold the port, or binding a port below 1024 requires
privileges. The launcher does not retry.`,
	}

	appLoadFailedIssue = &Issue{
		id: AppLoadFailedId,
		mdMsg: `
# Failed to load the application

The entry reference could not be resolved, so no socket was bound.

~~~
$ berth serve status:app
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration

~~~
$ berth config show
~~~`,
	}

	issues = map[Id]*Issue{
		recipeNotFoundIssue.Id():             recipeNotFoundIssue,
		recipeParseErrorIssue.Id():           recipeParseErrorIssue,
		manifestParseErrorIssue.Id():         manifestParseErrorIssue,
		containerEngineNotFoundIssue.Id():    containerEngineNotFoundIssue,
		dependencyResolutionFailedIssue.Id(): dependencyResolutionFailedIssue,
		imageBuildFailedIssue.Id():           imageBuildFailedIssue,
		entryPointMissingIssue.Id():          entryPointMissingIssue,
		portMismatchIssue.Id():               portMismatchIssue,
		bindFailedIssue.Id():                 bindFailedIssue,
		appLoadFailedIssue.Id():              appLoadFailedIssue,
		configLoadFailedIssue.Id():           configLoadFailedIssue,
	}
)

// Values returns every known issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
