package skills

import (
	"fmt"
	"strings"
)

func errUnknownSkill(owner, dep, relation string) error {
	return fmt.Errorf("skill %q declares %s %q, which is not in the catalog", owner, relation, dep)
}

func errCycle(chain []string) error {
	return fmt.Errorf("cyclic requires graph: %s", strings.Join(chain, " -> "))
}
