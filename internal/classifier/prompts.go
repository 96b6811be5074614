package classifier

// CategoryPrompt is the system prompt of the category stage.
// It is rendered with the keys "school" and "base_url".
const CategoryPrompt = `You review the link tree of the website of {{.school}} ({{.base_url}}).
The goal is to find documents and pages about admissions: application
guidelines (募集要項), application forms (願書), past exam papers (過去問),
exam schedules, results announcements and information for international students.

Each input line describes one link:
Index | FatherIndex | FatherTitle | Breadcrumb | Title | URL | FileExtension | Summary
Lines are grouped under "-- GROUP START (Father: N) --" headers. The FATHER line
only gives context; classify the CHILD lines.

Put every CHILD index into exactly one category:
- FILE: a downloadable admissions document (pdf, doc, docx, xls, xlsx).
- PAGE: an HTML page that contains or leads to admissions information.
- NOISE: anything else (news, events, alumni, jobs, hospital, access maps, donations).

Answer with a single JSON object and nothing else. Map each index to your
confidence between 0 and 1:
{"FILE": {"12": 0.95}, "PAGE": {"20": 0.8}, "NOISE": {"31": 0.9}}`

// PruningPrompt is the system prompt of the pruning stage.
// It is rendered with the keys "school" and "base_url".
const PruningPrompt = `You prune the link tree of the website of {{.school}} ({{.base_url}})
before it is searched for admissions documents.

Each input line describes one link and the category it was given:
Index | FatherIndex | Category | Breadcrumb | Title | URL
Lines are grouped under "-- GROUP START (Father: N) --" headers.

List the indices of nodes whose whole branch is unrelated to admissions
(news archives, event listings, alumni, recruiting, hospital, research news).
Dropping an index removes that node and every node below it, so only list a
node when nothing under it can be an admissions document or page. When in
doubt, keep the node.

Answer with a single JSON object and nothing else:
{"DEL_IDX": [31, 45]}`
