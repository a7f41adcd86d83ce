package coverletter

import "coverbot/internal/domain"

const (
	systemPrompt   = "You are a helpful assistant."
	resumePrefix   = "Here is the applicant's resume. Use it to tailor the cover letter:\n\n"
	proposalPrefix = "Write a cover letter for the following project proposal: "
)

// BuildMessages returns the chat prompt for a proposal. The resume message is
// included only when resume is non-empty.
func BuildMessages(proposal, resume string) []domain.Message {
	msgs := make([]domain.Message, 0, 3)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	if resume != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: resumePrefix + resume})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: proposalPrefix + proposal})
	return msgs
}
