package sexy

import "fmt"

// Match checks actual against pattern. An ellipsis in a pattern matches
// any datum, and inside a list any run of items. Metadata given in a
// pattern list must be present in the actual list; extra metadata is
// ignored. On mismatch the returned error names the path of the first
// difference.
func Match(pattern, actual *Node) error {
	return match(pattern, actual, "root")
}

func match(pattern, actual *Node, path string) error {
	if pattern.Type == NodeEllipsis {
		return nil
	}
	if actual == nil {
		return fmt.Errorf("at %s: expected %s, got nothing", path, pattern)
	}
	if pattern.Type != actual.Type {
		return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
	}
	switch pattern.Type {
	case NodeInteger:
		pv, perr := pattern.Uint()
		av, aerr := actual.Uint()
		if perr == nil && aerr == nil && pv == av {
			return nil
		}
		return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
	case NodeSymbol, NodeString:
		if pattern.Text != actual.Text {
			return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
		}
		return nil
	case NodeMap:
		return matchMap(pattern.Keys, pattern.Items, actual.Keys, actual.Items, path)
	}
	if err := matchMap(pattern.MetaKeys, pattern.MetaItems, actual.MetaKeys, actual.MetaItems, path+"^"); err != nil {
		return err
	}
	if !matchItems(pattern.Items, actual.Items, path) {
		return firstItemMismatch(pattern, actual, path)
	}
	return nil
}

func matchMap(pkeys []string, pitems []*Node, akeys []string, aitems []*Node, path string) error {
	for i, key := range pkeys {
		var found *Node
		for j, k := range akeys {
			if k == key {
				found = aitems[j]
				break
			}
		}
		if found == nil {
			return fmt.Errorf("at %s: missing key %s", path, key)
		}
		if err := match(pitems[i], found, path+"."+key); err != nil {
			return err
		}
	}
	return nil
}

// matchItems matches list items, letting each ellipsis absorb zero or more
// items.
func matchItems(pattern, actual []*Node, path string) bool {
	if len(pattern) == 0 {
		return len(actual) == 0
	}
	if pattern[0].Type == NodeEllipsis {
		for skip := 0; skip <= len(actual); skip++ {
			if matchItems(pattern[1:], actual[skip:], path) {
				return true
			}
		}
		return false
	}
	if len(actual) == 0 || match(pattern[0], actual[0], path) != nil {
		return false
	}
	return matchItems(pattern[1:], actual[1:], path)
}

// firstItemMismatch explains a failed list match position by position,
// which is exact for patterns without ellipses.
func firstItemMismatch(pattern, actual *Node, path string) error {
	for i, p := range pattern.Items {
		if p.Type == NodeEllipsis {
			break
		}
		var a *Node
		if i < len(actual.Items) {
			a = actual.Items[i]
		}
		if err := match(p, a, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
}
