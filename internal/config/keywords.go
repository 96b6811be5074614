package config

// CoreKeywords mark a "hot" page: a page whose title or text contains one of
// them is about admissions documents, so every same-site link on it is followed.
var CoreKeywords = []string{
	"募集要項", "願書", "出願", "過去問", "入試問題", "試験問題", "合格発表",
	"外国人留学生", "検定料", "試験",
}

// HeuristicKeywords decide which links are followed on ordinary pages.
// A link is followed when its URL or anchor text contains one of them.
var HeuristicKeywords = append([]string{
	"入試", "要項", "特別選抜", "大学院", "学部", "案内", "資料", "書類",
	"download", "admissions", "admission", "pdf",
	"2025", "2026", "r6", "r7", "令和6", "令和7",
	"boshuyoko", "kakomon", "shutsugan", "nyushi", "daigakuin",
	"shushi", "hakushi", "kenkyuka", "mondai", "yoko",
	"application", "guidelines", "past_exam", "international",
	"master", "doctor", "shorui", "entry",
	"application guidelines", "past exam", "past papers", "exam result",
}, CoreKeywords...)

// Blacklist links are never followed and never become nodes.
var Blacklist = []string{
	// social and external platforms
	"facebook.com", "twitter.com", "x.com", "instagram.com", "youtube.com", "line.me", "linkedin",
	// campus maps and transport
	"access", "map", "transport", "キャンパスマップ", "マップ", "アクセス", "交通", "駐車場",
	// endless generated listings
	"calendar", "archive", "schedule", "timetable", "行事", "カレンダー", "予定",
	"search", "filter", "sort", "tags",
	// news and events
	"news", "event", "events", "ニュース", "イベント", "トピックス", "topics", "press", "お知らせ",
	// administration and portals
	"privacy", "terms", "sitemap", "site-policy", "copyright",
	"プライバシー", "サイトマップ",
	"login", "auth", "register", "mypage", "portal", "ログイン", "マイページ",
	// history and culture
	"history", "沿革", "philosophy", "理念", "校歌", "anthem", "greeting", "学長",
	"donation", "寄付", "kifu", "基金", "giving", "広報",
	// university hospital
	"hospital", "patient", "clinic", "病院", "患者", "外来", "診療",
	// recruiting and procurement
	"recruit", "job", "jobs", "採用", "公募", "求人", "人事", "調達", "tender",
	// contact
	"contact", "お問い合わせ", "inquiry",
}

// NoiseKeywords short-circuit the category stage: a node whose title or URL
// matches one of them is NOISE without asking the model. The list is
// narrower than Blacklist because a false hit here hides a page from tier A.
var NoiseKeywords = []string{
	"news", "event", "events", "ニュース", "イベント", "お知らせ", "トピックス",
	"alumni", "同窓会", "校友会", "採用", "求人", "recruit", "寄付", "donation",
	"病院", "hospital", "アクセス", "access", "サイトマップ", "sitemap",
}

// FileExtensions are link targets that are recorded as leaves and never fetched.
var FileExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".rdf", ".mp3", ".mp4", ".mpg",
	".jpg", ".jpeg", ".png", ".gif",
}
