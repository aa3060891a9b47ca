package agent

import (
	"fmt"
	"strings"

	"github.com/hybridchat/hub/pkg/hub"
)

const queryTemplate = "You are the receiver of the following query:\n\n" +
	"<query sender=%q receiver=%q>\n%s\n</query>\n\n" +
	"Please respond to this query."

const messageTemplate = "<message sender=%q receiver=%q>\n%s\n</message>"

const updatesTemplate = "\n\nNew messages between others in the current thread:\n\n<updates>\n%s\n</updates>"

const threadTemplate = "<thread id=%q>\n%s\n</thread>"

const threadsTemplate = "\n\nMessages in other threads:\n\n<threads>\n%s\n</threads>"

// formatInput renders request into the user-turn text an LLM provider
// sees, grounded on the original source's hygroup/agent/default/prompt.py
// format_input: the query wrapped in a <query> tag, followed by any
// buffered updates and any loaded threads as additional context.
func formatInput(request hub.AgentRequest, receiver string, updates []hub.Message, threads []hub.Thread) string {
	formattedQuery := fmt.Sprintf(queryTemplate, request.Sender, receiver, request.Query)

	var formattedUpdates string
	if len(updates) > 0 {
		lines := make([]string, len(updates))
		for i, msg := range updates {
			lines[i] = formatMessage(msg)
		}
		formattedUpdates = fmt.Sprintf(updatesTemplate, strings.Join(lines, "\n"))
	}

	var formattedThreads string
	if len(threads) > 0 {
		blocks := make([]string, len(threads))
		for i, thread := range threads {
			lines := make([]string, len(thread.Messages))
			for j, msg := range thread.Messages {
				lines[j] = formatMessage(msg)
			}
			blocks[i] = fmt.Sprintf(threadTemplate, thread.SessionID, strings.Join(lines, "\n"))
		}
		formattedThreads = fmt.Sprintf(threadsTemplate, strings.Join(blocks, "\n"))
	}

	return fmt.Sprintf("%s You may use the following messages as context:\n\n<context>%s%s\n</context>",
		formattedQuery, formattedUpdates, formattedThreads)
}

func formatMessage(message hub.Message) string {
	return fmt.Sprintf(messageTemplate, message.Sender, message.ReceiverOr(), message.Text)
}
