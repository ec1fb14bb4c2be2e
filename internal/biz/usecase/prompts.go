package usecase

import (
	"strings"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// PromptSet contains every prompt template a facilitator uses.
// Placeholders use {{name}} syntax.
type PromptSet struct {
	Behavior               string              // {{botname}}, {{topic}}, {{users}}
	Classification         string              // {{topic}}
	Participation          string              // {{user}}
	Conclusion             string              // {{time}}
	Inactivity             string              // whole room silent
	InactivityParticipants string              // {{users}}
	Shorten                string              // appended when a reply is too long
	Interventions          map[string]string   // action name -> instruction, {{user}}, {{topic}}
	RuleOrders             map[string][]string // bot type -> rule order
}

// DefaultPromptSet contains default prompts
var DefaultPromptSet = PromptSet{
	Behavior: `You are {{botname}}, a facilitator in a small-group classroom discussion about "{{topic}}".
The participants are: {{users}}.
Open the discussion with one short, engaging question about the topic. Keep every message under 150 characters.
Guide the group toward understanding without handing out answers. Address participants by name when useful.`,
	Classification: `You classify messages from a classroom discussion about "{{topic}}".
For the latest user message answer with exactly two lines:
Cognitive Code: [Complete|Incomplete|Incorrect|Confusion|Off-topic|NA]
Collaborative Code: [Agree|Disagree|Build|Question|NA]`,
	Participation:          `{{user}} has barely contributed. Invite {{user}} into the discussion by name with a friendly, specific question.`,
	Conclusion:             `There is only {{time}} minute left in this discussion. Please prompt the users to WRAP UP THEIR DISCUSSION by supplying their final remarks.`,
	Inactivity:             `No messages have been sent in some time. Please bring this up to the users and ask them a follow up question.`,
	InactivityParticipants: `{{users}} have been quiet for a while. Encourage them by name to share their thinking with a follow up question.`,
	Shorten:                `Please reiterate your last response, but shorten it to less than 150 characters.`,
	Interventions: map[string]string{
		domain.ActionHint:           `{{user}} seems confused. Give a small hint that moves them forward without revealing the answer.`,
		domain.ActionComprehension:  `{{user}}'s last idea is incomplete. Ask a question that checks their understanding and invites them to finish the thought.`,
		domain.ActionPrompt:         `{{user}}'s last statement contains a misconception. Prompt them to reconsider it without saying they are wrong.`,
		domain.ActionBuild:          `The group agrees on an incomplete idea. Ask them to build on it and fill in what is missing.`,
		domain.ActionChallenge:      `The group keeps agreeing. Challenge them with a counterexample or an alternative viewpoint about {{topic}}.`,
		domain.ActionPeersEncourage: `{{user}} seems confused. Encourage the other participants to help explain.`,
		domain.ActionRedirect:       `The discussion has drifted off topic. Steer the group back to {{topic}}.`,
	},
	RuleOrders: map[string][]string{
		"cognitive":     domain.DefaultRuleOrder,
		"collaborative": {domain.RuleCollaborative, domain.RuleCognitive, domain.RuleProductivity, domain.RuleParticipation},
		"passive":       {domain.RuleProductivity},
	},
}

// RuleOrder returns the rule order for a bot type, falling back to the default order
func (p PromptSet) RuleOrder(botType string) []string {
	if order, ok := p.RuleOrders[strings.ToLower(botType)]; ok && len(order) > 0 {
		return order
	}
	return domain.DefaultRuleOrder
}

// Intervention returns the instruction for an action
func (p PromptSet) Intervention(action domain.Action, topic string) string {
	if action.Name == domain.ActionParticipation {
		return fillTemplate(p.Participation, map[string]string{"user": action.Target})
	}
	tpl, ok := p.Interventions[action.Name]
	if !ok {
		tpl = DefaultPromptSet.Interventions[action.Name]
	}
	return fillTemplate(tpl, map[string]string{"user": action.Target, "topic": topic})
}

func fillTemplate(tpl string, vars map[string]string) string {
	for k, v := range vars {
		tpl = strings.ReplaceAll(tpl, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(tpl)
}
