package guard

import (
	"sort"

	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// DefaultOrder places guards after authentication filters of lower order
const DefaultOrder = 100

// Filter rejects requests matched by any enabled rule
type Filter struct {
	order  int
	rules  []Rule
	eval   *evaluator
	logger *logger.Logger
}

// NewFilter validates and compiles rules
func NewFilter(order int, rules []Rule, log *logger.Logger) (*Filter, error) {
	if log == nil {
		log = logger.NewNop()
	}

	eval := newEvaluator()
	active := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		if err := validateRule(&rule); err != nil {
			return nil, rpcerr.Configuration(err, "invalid guard rule")
		}
		if err := eval.compile(rule.Conditions); err != nil {
			return nil, rpcerr.Configuration(err, "invalid guard rule %s", rule.Name)
		}
		if rule.Disabled {
			log.Debug("skipping disabled guard rule", "rule", rule.Name)
			continue
		}
		active = append(active, rule)
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	return &Filter{
		order:  order,
		rules:  active,
		eval:   eval,
		logger: log,
	}, nil
}

func (f *Filter) Order() int { return f.order }

// Rules returns the enabled rules in evaluation order
func (f *Filter) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// DoFilter returns the rejection of the first rule matching req
func (f *Filter) DoFilter(authKey string, req *model.Request) error {
	if req == nil {
		return rpcerr.Usage("request cannot be nil")
	}

	topic := model.FullTopic(req.BaseTopic, req.Operation)

	var values map[string]interface{}
	for i := range f.rules {
		rule := &f.rules[i]
		if !topicMatches(rule.Topic, topic) {
			continue
		}
		if values == nil {
			values = requestValues(authKey, req)
		}
		if !f.eval.matches(rule.Conditions, values) {
			continue
		}

		f.logger.Info("request rejected by guard rule",
			"rule", rule.Name,
			"topic", topic,
			"traceId", req.TraceID)
		return rejection(rule)
	}
	return nil
}

func rejection(rule *Rule) error {
	message := rule.Message
	if message == "" {
		message = "request rejected by rule " + rule.Name
	}

	switch rule.Reject {
	case RejectUnauthorized:
		return rpcerr.Unauthorized("%s", message)
	case RejectInvalid:
		return rpcerr.InvalidInput(nil, "%s", message)
	case RejectLocked:
		return rpcerr.Locked("%s", message)
	default:
		return rpcerr.Forbidden("%s", message)
	}
}
