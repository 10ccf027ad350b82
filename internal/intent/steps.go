package intent

import (
	"errors"
	"strings"
)

// Step identifies a state in the lead-capture flow. Transitions are strictly
// forward: each field, once set, is never asked for again until a full reset.
type Step string

const (
	StepName     Step = "name"
	StepServices Step = "services"
	StepTimeline Step = "timeline"
	StepBudget   Step = "budget"
	StepContact  Step = "contact"
	StepComplete Step = "complete"
)

var (
	errEmptyMessage   = errors.New("Message cannot be empty")
	errMessageTooLong = errors.New("Message is too long (max 2000 characters)")
)

// activeStep scans lead fields in fixed priority order and returns the first
// unset one. Company and project description are optional and never block
// completion.
func activeStep(lead LeadData) Step {
	switch {
	case lead.Name == "":
		return StepName
	case len(lead.Services) == 0:
		return StepServices
	case lead.Timeline == "":
		return StepTimeline
	case lead.Budget == "":
		return StepBudget
	case lead.ContactMethod == "":
		return StepContact
	default:
		return StepComplete
	}
}

// ActiveStep exposes the current capture step for a lead in progress.
func ActiveStep(lead LeadData) Step { return activeStep(lead) }

// StepPrompt returns the fixed script asking for the given step. The
// complete step has no question; see QuoteSummary.
func StepPrompt(step Step) string {
	switch step {
	case StepName:
		return "Great! I'd love to help you get a quote. To get started, could you please share your name?"
	case StepServices:
		var b strings.Builder
		b.WriteString("What services are you interested in? You can select multiple:")
		for _, service := range ServiceCatalog {
			b.WriteString("\n• ")
			b.WriteString(service)
		}
		return b.String()
	case StepTimeline:
		return "What's your project timeline? (e.g., '2 weeks', '1 month', '3 months', 'ASAP')"
	case StepBudget:
		return "What's your budget range? (e.g., 'Under $5K', '$5K-$10K', '$10K-$25K', '$25K+', 'Let's discuss')"
	case StepContact:
		return "How would you prefer we contact you? (WhatsApp or Email)"
	default:
		return ""
	}
}

// QuoteSummary renders the completion message shown once every required field
// is captured, including the wa.me deep link.
func QuoteSummary(lead LeadData, phoneNumber string) string {
	contact := "Email"
	if lead.ContactMethod == ContactWhatsApp {
		contact = "WhatsApp"
	}

	var b strings.Builder
	b.WriteString("Perfect! Here's your quote summary:\n\n")
	b.WriteString("Name: " + lead.Name + "\n")
	if lead.Company != "" {
		b.WriteString("Company: " + lead.Company + "\n")
	}
	b.WriteString("Services: " + strings.Join(lead.Services, ", ") + "\n")
	b.WriteString("Timeline: " + lead.Timeline + "\n")
	b.WriteString("Budget: " + lead.Budget + "\n")
	b.WriteString("Contact: " + contact + "\n\n")
	b.WriteString("Click here to open WhatsApp with your quote request:\n")
	b.WriteString(BuildWhatsAppURL(lead, phoneNumber))
	return b.String()
}
