package filter

import (
	"strings"
	"testing"
)

func TestFirstMatchingRuleWins(t *testing.T) {
	p := New([]Rule{
		{Kind: KindInclude, Pattern: "*.go"},
		{Kind: KindExclude, Pattern: "*"},
	})
	if got := p.Match("main.go", false, SideBoth); got != DecisionInclude {
		t.Errorf("Match(main.go) = %v, want DecisionInclude", got)
	}
	if got := p.Match("README.md", false, SideBoth); got != DecisionExclude {
		t.Errorf("Match(README.md) = %v, want DecisionExclude", got)
	}
}

func TestAnchoredPatternMatchesOnlyAtRoot(t *testing.T) {
	p := New([]Rule{{Kind: KindExclude, Pattern: "/build"}})
	if got := p.Match("build", true, SideBoth); got != DecisionExclude {
		t.Errorf("Match(build) = %v, want DecisionExclude", got)
	}
	if got := p.Match("sub/build", true, SideBoth); got != DecisionDefault {
		t.Errorf("Match(sub/build) = %v, want DecisionDefault (anchored pattern must not match nested dir)", got)
	}
}

func TestUnanchoredPatternMatchesAnyDepth(t *testing.T) {
	p := New([]Rule{{Kind: KindExclude, Pattern: "*.tmp"}})
	if got := p.Match("a/b/c.tmp", false, SideBoth); got != DecisionExclude {
		t.Errorf("Match(a/b/c.tmp) = %v, want DecisionExclude", got)
	}
}

func TestDoubleStarMatchesAcrossSegments(t *testing.T) {
	p := New([]Rule{{Kind: KindExclude, Pattern: "/a/**/z"}})
	if got := p.Match("a/b/c/z", false, SideBoth); got != DecisionExclude {
		t.Errorf("Match(a/b/c/z) = %v, want DecisionExclude", got)
	}
	if got := p.Match("a/z", false, SideBoth); got != DecisionExclude {
		t.Errorf("Match(a/z) = %v, want DecisionExclude (** may match zero segments)", got)
	}
}

func TestDirOnlyPatternRequiresDirectory(t *testing.T) {
	p := New([]Rule{{Kind: KindExclude, Pattern: "logs/"}})
	if got := p.Match("logs", true, SideBoth); got != DecisionExclude {
		t.Errorf("Match(logs, isDir) = %v, want DecisionExclude", got)
	}
	if got := p.Match("logs", false, SideBoth); got != DecisionDefault {
		t.Errorf("Match(logs, file) = %v, want DecisionDefault", got)
	}
}

func TestSideRestrictedRuleOnlyAppliesToItsSide(t *testing.T) {
	p := New([]Rule{{Kind: KindExclude, Pattern: "*.secret", Side: SideSender}})
	if got := p.Match("x.secret", false, SideSender); got != DecisionExclude {
		t.Errorf("sender-side Match = %v, want DecisionExclude", got)
	}
	if got := p.Match("x.secret", false, SideReceiver); got != DecisionDefault {
		t.Errorf("receiver-side Match = %v, want DecisionDefault", got)
	}
}

func TestParseRulesBasicGrammar(t *testing.T) {
	input := `+ include-me
- exclude-me
# a comment
; another comment

+bareinclude
-bareexclude
`
	rules, err := ParseRules(strings.NewReader(input), SideBoth)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	want := []struct {
		kind    Kind
		pattern string
	}{
		{KindInclude, "include-me"},
		{KindExclude, "exclude-me"},
		{KindInclude, "bareinclude"},
		{KindExclude, "bareexclude"},
	}
	if len(rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(rules), len(want))
	}
	for i, w := range want {
		if rules[i].Kind != w.kind || rules[i].Pattern != w.pattern {
			t.Errorf("rule %d = %+v, want kind=%v pattern=%q", i, rules[i], w.kind, w.pattern)
		}
	}
}
