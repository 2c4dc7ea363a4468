package pipeline

import "github.com/LJTian/DigestHub/internal/storage"

// wantsArticle reports whether user should get an article in categoryID.
// Uncategorized articles go to everyone, and so does everything for users
// without preferences.
func wantsArticle(user storage.User, categoryID *uint) bool {
	if categoryID == nil || len(user.CategoryPreferences) == 0 {
		return true
	}
	for _, c := range user.CategoryPreferences {
		if c.ID == *categoryID {
			return true
		}
	}
	return false
}

type target struct {
	user    storage.User
	channel storage.NotificationChannel
}

// targetsFor expands subscribers into the active channels that should
// receive an article.
func targetsFor(users []storage.User, categoryID *uint) []target {
	var out []target
	for _, u := range users {
		if !wantsArticle(u, categoryID) {
			continue
		}
		for _, ch := range u.NotificationChannels {
			if ch.IsActive {
				out = append(out, target{user: u, channel: ch})
			}
		}
	}
	return out
}
