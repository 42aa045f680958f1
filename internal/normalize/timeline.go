package normalize

// Timeline extracts raw status fragments from a timeline envelope. Three
// shapes are recognized: a "cards" tree (card groups nest recursively and
// are walked with an explicit stack), a {"data":{"list":[...]}} page, and a
// top-level "card_group" array. Unrecognized envelopes yield an empty list.
func Timeline(raw map[string]any) []map[string]any {
	if raw == nil {
		return nil
	}
	if cards := list(raw, "cards"); cards != nil {
		return statusesFromCards(cards)
	}
	if data := child(raw, "data"); data != nil {
		if inner := list(data, "list"); inner != nil {
			return statusList(inner)
		}
		if cards := list(data, "cards"); cards != nil {
			return statusesFromCards(cards)
		}
	}
	if group := list(raw, "card_group"); group != nil {
		return statusesFromCards(group)
	}
	return nil
}

func statusesFromCards(cards []any) []map[string]any {
	var out []map[string]any
	stack := make([]any, 0, len(cards))
	for i := len(cards) - 1; i >= 0; i-- {
		stack = append(stack, cards[i])
	}
	for len(stack) > 0 {
		card := asMap(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		if card == nil {
			continue
		}
		if mblog := child(card, "mblog"); mblog != nil {
			out = append(out, mblog)
		}
		if group := list(card, "card_group"); group != nil {
			for i := len(group) - 1; i >= 0; i-- {
				stack = append(stack, group[i])
			}
		}
	}
	return out
}

func statusList(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, v := range items {
		if m := asMap(v); m != nil {
			out = append(out, m)
		}
	}
	return out
}
