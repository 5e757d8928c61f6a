package catalog

// Seeded definitions, used until an admin customizes a category. IDs are
// stable so history rows recorded against defaults keep resolving.

func defaults(c Category) []Definition {
	switch c {
	case CategoryCore:
		return []Definition{
			{ID: "c1", Name: "Finish homework without reminders", Points: 10, Icon: "📝", Enabled: true},
			{ID: "c2", Name: "Up and ready for school on time", Points: 5, Icon: "🎯", Enabled: true},
		}
	case CategoryDaily:
		return []Definition{
			{ID: "d1", Name: "Practice violin for 30 minutes", Points: 5, Icon: "🎻", Enabled: true},
			{ID: "d2", Name: "Morning reading or recitation", Points: 3, Icon: "📖", Enabled: true},
			{ID: "d3", Name: "One hour of outdoor play", Points: 5, Icon: "🏃", Enabled: true},
		}
	case CategoryBounty:
		return []Definition{
			{ID: "b1", Name: "Keep your little brother entertained", Points: 10, Icon: "👶", Enabled: true},
			{ID: "b2", Name: "Help fix something around the house", Points: 15, Icon: "🔧", Enabled: true},
		}
	case CategoryPenalty:
		return []Definition{
			{ID: "p1", Name: "Shouting or talking back", Points: 20, Icon: "😡", Enabled: true},
			{ID: "p2", Name: "Dawdling past agreed times", Points: 10, Icon: "🐢", Enabled: true},
			{ID: "p3", Name: "Screen time without permission", Points: 50, Icon: "📱", Enabled: true},
		}
	case CategoryStore:
		return []Definition{
			{ID: "s1", Name: "30 minutes of phone time", Points: 50, Icon: "🎮", Enabled: true},
			{ID: "s2", Name: "Movie night, your pick", Points: 100, Icon: "🎬", Enabled: true},
			{ID: "s3", Name: "Weekend commander", Points: 300, Icon: "👑", Enabled: true},
			{ID: "s4", Name: "Toolbox privileges", Points: 100, Icon: "🛠️", Enabled: true},
		}
	default:
		return nil
	}
}

func defaultIcon(c Category) string {
	switch c {
	case CategoryPenalty:
		return "⚠️"
	case CategoryStore:
		return "🎁"
	default:
		return "⭐"
	}
}
