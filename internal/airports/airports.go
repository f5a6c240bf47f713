package airports

// Статический справочник: IATA-код -> отображаемое имя для сообщений бота.
// Список сознательно короткий (популярные направления РФ), незнакомые коды
// показываем как есть.
var names = map[string]string{
	"SVO": "Москва (Шереметьево)",
	"DME": "Москва (Домодедово)",
	"VKO": "Москва (Внуково)",
	"ZIA": "Москва (Жуковский)",
	"LED": "Санкт-Петербург (Пулково)",
	"OVB": "Новосибирск (Толмачёво)",
	"AER": "Сочи (Адлер-Сочи)",
	"SVX": "Екатеринбург (Кольцово)",
	"KJA": "Красноярск (Емельяново)",
	"IKT": "Иркутск (Иркутск)",
	"KZN": "Казань (Казань Международный)",
	"UFA": "Уфа (Уфа Международный)",
	"MRV": "Минеральные Воды (Минеральные Воды)",
	"TJM": "Тюмень (Рощино)",
	"VVO": "Владивосток (Владивосток Международный)",
	"KGD": "Калининград (Храброво)",
	"KUF": "Самара (Курумоч)",
	"KHV": "Хабаровск (Хабаровск-Новый)",
	"SGC": "Сургут (Сургут Международный)",
	"YKS": "Якутск (Якутск)",
	"MCX": "Махачкала (Уйташ)",
	"KRR": "Краснодар (Пашковский)",
	"GOJ": "Нижний Новгород (Стригино)",
	"PEE": "Пермь (Большое Савино)",
	"CEK": "Челябинск (Челябинск)",
	"ASF": "Астрахань (Нариманово)",
	"VOZ": "Воронеж (Воронеж Международный)",
	"RTW": "Саратов (Гагарин)",
	"UUD": "Улан-Удэ (Байкал)",
	"UUS": "Южно-Сахалинск (Южно-Сахалинск)",
}

// Name возвращает человекочитаемое имя аэропорта или сам код, если он неизвестен.
func Name(iata string) string {
	if n, ok := names[iata]; ok {
		return n
	}
	return iata
}
