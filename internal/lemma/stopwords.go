package lemma

var stopWords = func() map[string]struct{} {
	words := []string{
		// English
		"a", "an", "the", "and", "or", "but", "nor", "so", "yet", "if", "then", "than",
		"as", "at", "by", "for", "from", "in", "into", "of", "off", "on", "onto", "out",
		"over", "to", "up", "with", "without", "within", "about", "above", "after",
		"against", "along", "among", "around", "before", "behind", "below", "beneath",
		"beside", "between", "beyond", "during", "except", "inside", "near", "since",
		"through", "toward", "towards", "under", "until", "upon", "via", "is", "are",
		"was", "were", "be", "been", "being", "am", "do", "does", "did", "it", "its",
		"this", "that", "these", "those", "not", "no", "oh", "ah", "wow", "hey", "just",
		"also", "only", "although", "because", "while", "whether", "unless", "whereas",
		// Russian
		"и", "в", "во", "не", "на", "с", "со", "что", "как", "а", "но", "да", "или", "ли",
		"же", "бы", "ну", "вот", "уж", "ведь", "лишь", "даже", "ни", "нибудь", "либо",
		"то", "к", "ко", "у", "о", "об", "обо", "от", "ото", "по", "за", "из", "изо",
		"для", "до", "при", "про", "под", "подо", "над", "надо", "без", "безо", "через",
		"перед", "передо", "между", "среди", "около", "возле", "вокруг", "после",
		"ради", "сквозь", "вместо", "кроме", "чтобы", "если", "когда", "хотя", "пока",
		"зато", "также", "тоже", "будто", "словно", "ах", "ох", "эх", "ой", "ого", "увы",
		"эй", "ага", "разве", "неужели", "пусть", "пускай", "вон", "именно", "еще",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
