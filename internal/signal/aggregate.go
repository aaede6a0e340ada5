package signal

import "math"

// Aggregate 把信号按日期折叠成决策，dates 中每个日期恰好产出一条 Decision。
// 强度低于档位 MinSignalStrength 的信号不计入；买卖强度相等时一律 hold。
func Aggregate(dates []string, signals []Signal, profile Profile) []Decision {
	out := make([]Decision, len(dates))
	for i, date := range dates {
		out[i] = Decision{Index: i, Date: date, Action: ActionHold, Profile: profile.Name}
	}
	for _, s := range signals {
		if s.Index < 0 || s.Index >= len(out) || s.Strength < profile.MinSignalStrength {
			continue
		}
		d := &out[s.Index]
		switch s.Direction {
		case Buy:
			d.BuyStrength += s.Strength
			d.BuyCount++
		case Sell:
			d.SellStrength += s.Strength
			d.SellCount++
		}
	}
	for i := range out {
		decide(&out[i], profile)
	}
	return out
}

func decide(d *Decision, profile Profile) {
	total := d.BuyStrength + d.SellStrength
	if total == 0 {
		return
	}
	net := d.BuyStrength - d.SellStrength
	d.Confidence = math.Round(float64(abs(net))/float64(total)*1e4) / 1e4
	switch {
	case net >= profile.MinNetStrength && d.BuyCount >= profile.MinConfirmations:
		d.Action = ActionBuy
	case -net >= profile.MinNetStrength && d.SellCount >= profile.MinConfirmations:
		d.Action = ActionSell
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
