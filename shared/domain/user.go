package domain

type UserProfile struct {
	Uid      UserId
	Username string
	Userslug string
	Picture  string
}

// GuestProfile is shown for posts by uid 0.
func GuestProfile(handle string) *UserProfile {
	name := "Guest"
	if handle != "" {
		name = handle
	}
	return &UserProfile{Uid: GuestUid, Username: name}
}

type UserSettings struct {
	PostsPerPage  int
	UsePagination bool
	PostSort      PostSort
}
