package slashcmd

// ClaudeBuiltins returns the slash commands the Claude Code CLI implements
// itself. These never appear in the agent's reported command list with
// descriptions, so the descriptions live here.
func ClaudeBuiltins() []Command {
	return []Command{
		{Name: "compact", Description: "Clear conversation history but keep a summary in context. Optional: /compact [instructions for summarization]"},
		{Name: "review", Description: "Review a pull request"},
		{Name: "security-review", Description: "Complete a security review of the pending changes on the current branch"},
		{Name: "init", Description: "Initialize a new CLAUDE.md file with codebase documentation"},
		{Name: "pr-comments", Description: "Get comments from a GitHub pull request"},
		{Name: "context", Description: "Visualize current context usage as a colored grid"},
		{Name: "cost", Description: "Show the total cost and duration of the current session"},
		{Name: "release-notes", Description: "View release notes"},
	}
}
