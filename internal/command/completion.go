// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
)

const bashCompletionScript = `# bash completion for npmpipe
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_npmpipe_stacks()
{
    local file=${NPMPIPE_FILE:-npmpipe.hcl}
    [[ -f $file ]] && sed -n 's/^[[:space:]]*stack[[:space:]]*"\([^"]*\)".*/\1/p' "$file"
}

_npmpipe()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "ls synth audit buildspec diff deploy status completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local common="--color -c --file -f --filter -F --output -o --padding --sort -s --titles -t"
    local aws="--profile -p --region -r"

    case "$cmd" in
        ls)
            local opts="$common"
            ;;
        synth)
            local opts="$common --dir -d"
            ;;
        audit)
            local opts="$common --actions --template"
            ;;
        buildspec)
            local opts="$common --check --dir --env --run --skip"
            ;;
        diff)
            local opts="$common $aws --ignore --offline"
            ;;
        deploy)
            local opts="$common $aws --all --no-preflight --staging-bucket --wait --yes -y"
            ;;
        status)
            local opts="$common $aws --limit"
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)
            local opts="$common"
            ;;
    esac

    case "$prev" in
        --output|-o)
            COMPREPLY=( $(compgen -W "text json raw yaml" -- "$cur") )
            return 0
            ;;
        --file|-f|--template)
            COMPREPLY=( $(compgen -f -- "$cur") )
            return 0
            ;;
        --dir|-d)
            COMPREPLY=( $(compgen -o dirnames -- "$cur") )
            return 0
            ;;
    esac

    if [[ "$cur" == -* ]]; then
        COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
        return 0
    fi

    # Otherwise offer the declared stack names.
    COMPREPLY=( $(compgen -W "$(_npmpipe_stacks)" -- "$cur") )
    return 0
}

complete -F _npmpipe npmpipe
`

const zshCompletionScript = `#compdef npmpipe

_npmpipe_stacks() {
  local file=${NPMPIPE_FILE:-npmpipe.hcl}
  local -a stacks
  [[ -f $file ]] && stacks=(${(f)"$(sed -n 's/^[[:space:]]*stack[[:space:]]*"\([^"]*\)".*/\1/p' $file)"})
  _describe -t stacks 'stacks' stacks
}

_npmpipe() {
  local -a cmds
  cmds=(
    'ls:list the declared stacks'
    'synth:synthesize the CloudFormation template of a stack'
    'audit:check the IAM policies for least privilege'
    'buildspec:print, check or rehearse the release build'
    'diff:compare the deployed template with a fresh synthesis'
    'deploy:create or update the pipeline stack'
    'status:show where the release pipeline stands'
    'completion:generate shell completion script'
  )

  local -a common
  common=(
  '(-c --color)'{-c,--color}'[enable colored text]'
  '(-f --file)'{-f,--file}'[stack file]:file:_files'
  '(-F --filter)'{-F,--filter}'[filters to apply]:filters'
  '(-o --output)'{-o,--output}'[output format]:format:(text json raw yaml)'
  '--padding[spaces between columns]:padding'
  '(-s --sort)'{-s,--sort}'[sort columns]:columns'
  '(-t --titles)'{-t,--titles}'[show titles]'
  )

  local -a aws
  aws=(
  '(-p --profile)'{-p,--profile}'[AWS profile]:profile'
  '(-r --region)'{-r,--region}'[AWS region]:region'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'npmpipe commands' cmds
    return
  fi

  local curcontext="$curcontext" state line
  case $words[2] in
    ls)
      _arguments -C $common
      ;;
    synth)
      _arguments -C \
        $common \
        '(-d --dir)'{-d,--dir}'[output directory]:dir:_directories' \
        '::stack:_npmpipe_stacks'
      ;;
    audit)
      _arguments -C \
        $common \
        '--actions[list the granted actions]' \
        '--template[audit a template file]:file:_files' \
        '::stack:_npmpipe_stacks'
      ;;
    buildspec)
      _arguments -C \
        $common \
        '--check[check the latest tag is publishable]' \
        '--run[rehearse the build locally]' \
        '--dir[package checkout]:dir:_directories' \
        '*--env[KEY=VALUE]:env' \
        '*--skip[step to skip]:step:(configure-git-identity checkout-resolved-commit install-dependencies build-package release-pr github-release version-from-git prepare registry-login publish)' \
        '::stack:_npmpipe_stacks'
      ;;
    diff)
      _arguments -C \
        $common $aws \
        '--offline[compare with the cached template]' \
        '*--ignore[template key to ignore]:key' \
        '::stack:_npmpipe_stacks'
      ;;
    deploy)
      _arguments -C \
        $common $aws \
        '--all[deploy every stack]' \
        '(-y --yes)'{-y,--yes}'[do not ask]' \
        '--no-preflight[skip the secret check]' \
        '--staging-bucket[bucket for large templates]:bucket' \
        '--wait[longest wait]:duration' \
        '::stack:_npmpipe_stacks'
      ;;
    status)
      _arguments -C \
        $common $aws \
        '--limit[recent executions]:limit' \
        '::stack:_npmpipe_stacks'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
    *)
      _arguments -C $common
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys
# is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _npmpipe npmpipe
`

func completionCommandAction(ctx context.Context, cmd *cli.Command) error {
	w := writer(cmd)
	shell := cmd.Args().First()
	if shell == "" {
		// Try to detect from SHELL.
		sh := os.Getenv("SHELL")
		switch {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		return fmt.Errorf("usage: npmpipe completion [bash|zsh]")
	}
	return nil
}

func completionCommandBuilder(meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "npmpipe completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: completionCommandAction,
	}
}
