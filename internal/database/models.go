package database

// Article represents a stored news article.
type Article struct {
	ID        int64
	Title     string
	Content   string
	URL       *string
	FetchedAt *string
}

// Classification is the keyword count of one category for one article.
type Classification struct {
	ArticleID    int64
	Category     string
	KeywordCount int
}

// Interaction is the accumulated interaction score of a user with an article.
type Interaction struct {
	UserID      int64
	ArticleID   int64
	Interaction float64
}

// ScoredArticle is an article with a ranking score.
type ScoredArticle struct {
	ArticleID int64
	Title     string
	Score     int64
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles              int
	ClassifiedArticles    int
	UsersWithPreferences  int
	Preferences           int
	UsersWithInteractions int
	Interactions          int
}
