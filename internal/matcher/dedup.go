package matcher

// Deduplicate reduces accepted matches to at most one per system id and one
// per bank id. The first pass keeps the first match of each system id; the
// second pass walks those survivors and keeps the first match of each bank
// id. A system record whose surviving pair loses the bank-id pass is not
// offered another bank record.
func Deduplicate(accepted []Match) []Match {
	usedSystem := make(map[int]bool, len(accepted))
	bySystem := make([]Match, 0, len(accepted))
	for _, m := range accepted {
		if usedSystem[m.System.ID] {
			continue
		}
		usedSystem[m.System.ID] = true
		bySystem = append(bySystem, m)
	}

	usedBank := make(map[int]bool, len(bySystem))
	result := make([]Match, 0, len(bySystem))
	for _, m := range bySystem {
		if usedBank[m.Bank.ID] {
			continue
		}
		usedBank[m.Bank.ID] = true
		result = append(result, m)
	}

	return result
}
