package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/agents"
	"research-assistant/llm/agents/specialists"
	"research-assistant/llm/agents/team"
	"research-assistant/llm/memory"
	"research-assistant/llm/providers/test"
	"research-assistant/llm/services/conversations"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, verbose = "", false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitThenValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "ra.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Default configuration saved to: "+path)

	out, err = execute(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid!")

	_, err = execute(t, "config", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestSpecialistsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "specialists")
	require.NoError(t, err)
	for _, name := range []string{agents.InternetSearcher, agents.WebCrawler, agents.YouTubeAnalyst, agents.EmailAssistant, agents.GitHubResearcher, agents.HackerNewsMonitor, agents.GeneralAssistant} {
		assert.Contains(t, out, name)
	}
}

func TestToolsListCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "duckduckgo_search")
	assert.Contains(t, out, "hackernews_user_details")
}

func TestToolsRunRejectsBadJSON(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "tools", "run", "web_crawler", "{nope")
	assert.ErrorContains(t, err, "invalid JSON input")
}

func TestAskRawStreamsAnswer(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript("Your name is ResearchAssistantTeam.", test.Turn{Text: "Forty-two."})
	store := memory.NewInMemory()
	sessions := conversations.NewManager(func() (conversations.Runner, error) {
		return team.New(team.Config{
			Provider: fp,
			Store:    store,
			Members:  specialists.Descriptors(specialists.Settings{}),
			Agent:    agents.Options{Model: "fake"},
		})
	}, conversations.Options{})

	var out, errOut bytes.Buffer
	require.NoError(t, ask(context.Background(), sessions, "What is the answer?", &out, &errOut, true, false))
	assert.Equal(t, "Forty-two.\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestAskPlainWhenNotATerminal(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript("Your name is ResearchAssistantTeam.", test.Turn{Text: "**bold** claim"})
	store := memory.NewInMemory()
	sessions := conversations.NewManager(func() (conversations.Runner, error) {
		return team.New(team.Config{
			Provider: fp,
			Store:    store,
			Members:  specialists.Descriptors(specialists.Settings{}),
			Agent:    agents.Options{Model: "fake"},
		})
	}, conversations.Options{})

	var out, errOut bytes.Buffer
	require.NoError(t, ask(context.Background(), sessions, "Say something bold", &out, &errOut, false, false))
	assert.Equal(t, "**bold** claim\n", out.String())
}
