package bot

const (
	welcomeMessage = "👋 Welcome to Planning Poker!\n\n" +
		"Use /join to enter the session, then an admin imports tasks with /tasks and voting starts.\n" +
		"Type /help for the full command list."

	helpMessage = "🃏 <b>Planning Poker commands</b>\n\n" +
		"/join [token] — join the session (token decides your role)\n" +
		"/leave — leave the session\n" +
		"/tasks &lt;lines&gt; — import tasks: plain text, key=PROJ-1 refs or jql=&lt;query&gt;\n" +
		"/menu — open the menu\n" +
		"/state — show the current session state\n" +
		"/reset — drop the queued tasks (admin)\n" +
		"/jira_token &lt;token&gt; — set this group's Jira API token (admin)\n\n" +
		"Vote with the buttons under the task message. Re-voting overwrites your previous vote."

	notConfiguredMessage = "This chat is not configured for planning poker."
	notAdminMessage      = "Only a group admin can do that."
	joinFirstMessage     = "Join the session first with /join."
	unknownTokenMessage  = "That join token is not recognized."
	noJiraMessage        = "Jira is not configured for this bot."

	tasksPromptMessage = "Send /tasks followed by your task list — one task per line, " +
		"key=PROJ-1 to link a Jira issue, or jql=<query> to import from Jira."
)

// Callback data prefixes.
const (
	cbVote     = "vote:"
	cbTimer    = "timer:"
	cbOverride = "ovr:"
	cbFinish   = "finish_voting"
	cbAdvance  = "adv:next"
	cbDone     = "adv:finish"
	cbMenu     = "menu:"
	cbAdmin    = "admin:"
)
